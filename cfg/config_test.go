package cfg

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func validConfig() *Configuration {
	c := defaultConfiguration()
	c.InstanceID = "test-instance"
	c.Postgres.DSN = "postgres://localhost/notifile"
	c.Targets = []TargetConfiguration{
		{
			Name:     "domains_modified",
			Schema:   "public",
			Table:    "domains",
			Columns:  []string{"name"},
			Template: "/etc/notifile/zone.tmpl",
			Output:   "/var/lib/zones/db.example.com",
		},
	}
	return c
}

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()

	err := Validate()
	if err != nil {
		t.Errorf("Expected no error for valid config, got: %v", err)
	}
}

func TestValidate_MissingDSN(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Postgres.DSN = ""

	if err := Validate(); err == nil {
		t.Error("Expected error for missing DSN")
	}
}

func TestValidate_MissingChannel(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Postgres.Channel = ""

	if err := Validate(); err == nil {
		t.Error("Expected error for missing channel")
	}
}

func TestValidate_InvalidKeepalive(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []int{0, -5}

	for _, keepalive := range tests {
		Config = validConfig()
		Config.Daemon.KeepaliveSeconds = keepalive

		if err := Validate(); err == nil {
			t.Errorf("Expected error for keepalive %d", keepalive)
		}
	}
}

func TestValidate_NegativeUpdateFrequency(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Daemon.UpdateFrequency = -1

	if err := Validate(); err == nil {
		t.Error("Expected error for negative update frequency")
	}
}

func TestValidate_ZeroUpdateFrequencyAllowed(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Daemon.UpdateFrequency = 0

	if err := Validate(); err != nil {
		t.Errorf("Expected update frequency 0 to be valid (disabled), got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Logging.Format = "xml"

	if err := Validate(); err == nil {
		t.Error("Expected error for invalid log format")
	}
}

func TestValidate_InvalidAdminPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []int{-1, 0, 70000}

	for _, port := range tests {
		Config = validConfig()
		Config.Admin.Enabled = true
		Config.Admin.Port = port

		if err := Validate(); err == nil {
			t.Errorf("Expected error for invalid admin port %d", port)
		}
	}
}

func TestValidate_AdminPortIgnoredWhenDisabled(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Admin.Enabled = false
	Config.Admin.Port = 0

	if err := Validate(); err != nil {
		t.Errorf("Expected no error when admin disabled, got: %v", err)
	}
}

func TestValidate_NoTargets(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Targets = nil

	if err := Validate(); err == nil {
		t.Error("Expected error for empty target list")
	}
}

func TestValidate_DuplicateTargetName(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Targets = append(Config.Targets, Config.Targets[0])

	if err := Validate(); err == nil {
		t.Error("Expected error for duplicate target name")
	}
}

func TestValidate_EmptyColumns(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Targets[0].Columns = nil

	if err := Validate(); err == nil {
		t.Error("Expected error for target without columns")
	}
}

func TestValidate_FileModes(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	valid := []string{"", "644", "0644", "755", "4755", "1777", "0400"}
	for _, mode := range valid {
		Config = validConfig()
		Config.Targets[0].Mode = mode

		if err := Validate(); err != nil {
			t.Errorf("Expected mode %q to be valid, got: %v", mode, err)
		}
	}

	invalid := []string{"2644", "rw-r--r--", "64", "07777", "078", "u+x"}
	for _, mode := range invalid {
		Config = validConfig()
		Config.Targets[0].Mode = mode

		if err := Validate(); err == nil {
			t.Errorf("Expected error for invalid mode %q", mode)
		}
	}
}

func TestValidate_DuplicateSinkName(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Sinks = []SinkConfiguration{
		{Name: "audit", Type: "nats", Format: "json"},
		{Name: "audit", Type: "kafka", Format: "json"},
	}

	if err := Validate(); err == nil {
		t.Error("Expected error for duplicate sink name")
	}
}

func TestCleanColumns(t *testing.T) {
	got := CleanColumns([]string{" name ", "", "name", "ttl", "  ", "ttl", "content"})
	want := []string{"name", "ttl", "content"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	err := Load("non-existent-file.toml")
	if err != nil {
		t.Errorf("Expected no error for non-existent file, got: %v", err)
	}

	// Instance ID should be auto-generated
	if Config.InstanceID == "" {
		t.Error("Expected instance ID to be auto-generated")
	}
}

func TestLoad_File(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	content := `
instance_id = "node-a"

[postgres]
dsn = "postgres://localhost/dns"
channel = "dns_events"

[daemon]
keepalive_seconds = 10
update_frequency = 6

[[target]]
name = "domains_modified"
table = "domains"
columns = [" name ", "name", "", "ttl"]
template = "/etc/notifile/zone.tmpl"
output = "/var/lib/zones/db.example.com"
reload_command = "rndc reload"
`
	path := filepath.Join(t.TempDir(), "notifile.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if err := Load(path); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if Config.InstanceID != "node-a" {
		t.Errorf("Expected instance ID node-a, got %s", Config.InstanceID)
	}
	if Config.Postgres.Channel != "dns_events" {
		t.Errorf("Expected channel dns_events, got %s", Config.Postgres.Channel)
	}
	if Config.Daemon.KeepaliveSeconds != 10 {
		t.Errorf("Expected keepalive 10, got %d", Config.Daemon.KeepaliveSeconds)
	}
	if Config.Daemon.RetrySeconds != 30 {
		t.Errorf("Expected default retry delay 30, got %d", Config.Daemon.RetrySeconds)
	}

	if len(Config.Targets) != 1 {
		t.Fatalf("Expected 1 target, got %d", len(Config.Targets))
	}

	target := Config.Targets[0]
	if target.Schema != "public" {
		t.Errorf("Expected default schema public, got %s", target.Schema)
	}
	wantCols := []string{"name", "ttl"}
	if !reflect.DeepEqual(target.Columns, wantCols) {
		t.Errorf("Expected columns %v, got %v", wantCols, target.Columns)
	}
}

func TestLoad_ReappliesDefaults(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	if err := Load("non-existent-file.toml"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	Config.Daemon.KeepaliveSeconds = 99

	// A reload without the overriding file goes back to defaults
	if err := Load("non-existent-file.toml"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if Config.Daemon.KeepaliveSeconds != 30 {
		t.Errorf("Expected keepalive reset to default 30, got %d", Config.Daemon.KeepaliveSeconds)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	*ChannelFlag = "flagged_channel"
	*AdminPortFlag = 9999
	*VerboseFlag = true

	defer func() {
		*ChannelFlag = ""
		*AdminPortFlag = 0
		*VerboseFlag = false
	}()

	if err := Load(""); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if Config.Postgres.Channel != "flagged_channel" {
		t.Errorf("Expected channel flagged_channel, got %s", Config.Postgres.Channel)
	}
	if Config.Admin.Port != 9999 {
		t.Errorf("Expected admin port 9999, got %d", Config.Admin.Port)
	}
	if !Config.Logging.Verbose {
		t.Error("Expected verbose logging to be enabled")
	}
}

func TestGenerateInstanceID(t *testing.T) {
	id1, err := generateInstanceID()
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if id1 == "" {
		t.Error("Generated instance ID should not be empty")
	}

	// Generate another ID - should be the same (deterministic for machine)
	id2, err := generateInstanceID()
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if id1 != id2 {
		t.Error("Instance ID should be deterministic for same machine")
	}
}

func BenchmarkValidate(b *testing.B) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Validate()
	}
}
