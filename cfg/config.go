package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// PostgresConfiguration holds connection parameters for the source database
type PostgresConfiguration struct {
	DSN     string `toml:"dsn"`     // conninfo string or postgres:// URL
	Channel string `toml:"channel"` // LISTEN channel name
}

// DaemonConfiguration controls the event loop timing behavior
type DaemonConfiguration struct {
	KeepaliveSeconds      int `toml:"keepalive_seconds"`       // Max wait for a notification before a health check
	UpdateFrequency       int `toml:"update_frequency"`        // Full resync every N-th keepalive timeout (0 = disabled)
	RetrySeconds          int `toml:"retry_seconds"`           // Delay between reconnect attempts
	ReconnectPauseSeconds int `toml:"reconnect_pause_seconds"` // Pause before the first reconnect attempt
	ExitDelaySeconds      int `toml:"exit_delay_seconds"`      // Sleep before a non-zero exit (supervisor rate limit)
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"` // Served on the admin listener at /metrics
}

// AdminConfiguration for the operator HTTP API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Token       string `toml:"token"` // Empty disables authentication
}

// JournalConfiguration controls the local sync history store
type JournalConfiguration struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`      // SQLite database file
	History   int    `toml:"history"`   // Retained entries per target
	Snapshots bool   `toml:"snapshots"` // Keep compressed copies of written content
}

// SinkConfiguration describes one sync event destination
type SinkConfiguration struct {
	Name            string   `toml:"name"`
	Type            string   `toml:"type"`   // "nats" or "kafka"
	Format          string   `toml:"format"` // "json" or "msgpack"
	NatsURL         string   `toml:"nats_url"`
	Brokers         []string `toml:"brokers"`
	TopicPrefix     string   `toml:"topic_prefix"`
	FilterTargets   []string `toml:"filter_targets"` // Glob patterns on target name; empty = all
	QueueSize       int      `toml:"queue_size"`
	RetryInitialMS  int      `toml:"retry_initial_ms"`
	RetryMaxMS      int      `toml:"retry_max_ms"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
	MaxRetries      int      `toml:"max_retries"`
}

// TargetConfiguration describes one synchronized file
type TargetConfiguration struct {
	Name          string   `toml:"name"` // Unique; equals the notification payload that triggers it
	Schema        string   `toml:"schema"`
	Table         string   `toml:"table"`
	Columns       []string `toml:"columns"`
	OrderBy       string   `toml:"order_by"`
	Template      string   `toml:"template"`
	Output        string   `toml:"output"`
	ReloadCommand string   `toml:"reload_command"` // "{output}" is replaced with the output path
	Owner         string   `toml:"owner"`          // User name or uid
	Group         string   `toml:"group"`          // Group name or gid
	Mode          string   `toml:"mode"`           // Octal string, 3-4 digits
}

// Configuration is the main configuration structure
type Configuration struct {
	InstanceID string `toml:"instance_id"`

	Postgres   PostgresConfiguration   `toml:"postgres"`
	Daemon     DaemonConfiguration     `toml:"daemon"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
	Journal    JournalConfiguration    `toml:"journal"`
	Sinks      []SinkConfiguration     `toml:"sink"`
	Targets    []TargetConfiguration   `toml:"target"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "notifile.toml", "Path to configuration file")
	ChannelFlag    = flag.String("channel", "", "Notification channel (overrides config)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin API port (overrides config)")
	VerboseFlag    = flag.Bool("verbose", false, "Enable verbose logging (overrides config)")
)

// Default configuration
var Config = defaultConfiguration()

func defaultConfiguration() *Configuration {
	return &Configuration{
		InstanceID: "", // Auto-generate

		Postgres: PostgresConfiguration{
			Channel: "notifile",
		},

		Daemon: DaemonConfiguration{
			KeepaliveSeconds:      30,
			UpdateFrequency:       20,
			RetrySeconds:          30,
			ReconnectPauseSeconds: 1,
			ExitDelaySeconds:      0,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},

		Admin: AdminConfiguration{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        8980,
		},

		Journal: JournalConfiguration{
			Enabled:   true,
			Path:      "notifile.journal.db",
			History:   50,
			Snapshots: true,
		},
	}
}

var modePattern = regexp.MustCompile(`^[0134567][0-7]{2,3}$`)

// Load loads configuration from file and applies CLI overrides.
// Called again on a reload signal; defaults are re-applied first so values
// removed from the file fall back instead of lingering.
func Load(configPath string) error {
	Config = defaultConfiguration()

	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *ChannelFlag != "" {
		Config.Postgres.Channel = *ChannelFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	// Auto-generate instance ID if not set
	if Config.InstanceID == "" {
		var err error
		Config.InstanceID, err = generateInstanceID()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}
		log.Info().Str("instance_id", Config.InstanceID).Msg("Auto-generated instance ID")
	}

	// Normalize targets
	for i := range Config.Targets {
		t := &Config.Targets[i]
		if t.Schema == "" {
			t.Schema = "public"
		}
		t.Columns = CleanColumns(t.Columns)
	}

	return nil
}

// CleanColumns trims entries, drops empties and removes duplicates
// while preserving order
func CleanColumns(columns []string) []string {
	cleaned := make([]string, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if col == "" || seen[col] {
			continue
		}
		seen[col] = true
		cleaned = append(cleaned, col)
	}
	return cleaned
}

// generateInstanceID creates a unique instance ID based on machine ID
func generateInstanceID() (string, error) {
	id, err := machineid.ProtectedID("notifile")
	if err != nil {
		return "", err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}

	if Config.Postgres.Channel == "" {
		return fmt.Errorf("postgres.channel is required")
	}

	if Config.Daemon.KeepaliveSeconds < 1 {
		return fmt.Errorf("keepalive must be >= 1 second")
	}

	if Config.Daemon.UpdateFrequency < 0 {
		return fmt.Errorf("update frequency must be >= 0")
	}

	if Config.Daemon.RetrySeconds < 1 {
		return fmt.Errorf("retry delay must be >= 1 second")
	}

	if Config.Daemon.ReconnectPauseSeconds < 0 {
		return fmt.Errorf("reconnect pause must be >= 0 seconds")
	}

	if Config.Daemon.ExitDelaySeconds < 0 {
		return fmt.Errorf("exit delay must be >= 0 seconds")
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s", Config.Logging.Format)
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Journal.Enabled {
		if Config.Journal.Path == "" {
			return fmt.Errorf("journal.path is required when the journal is enabled")
		}
		if Config.Journal.History < 1 {
			return fmt.Errorf("journal history must be >= 1")
		}
	}

	sinkNames := make(map[string]bool, len(Config.Sinks))
	for _, sink := range Config.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("sink name is required")
		}
		if sinkNames[sink.Name] {
			return fmt.Errorf("duplicate sink name: %s", sink.Name)
		}
		sinkNames[sink.Name] = true

		if sink.QueueSize < 0 {
			return fmt.Errorf("sink %q: queue size must be >= 0", sink.Name)
		}
		if sink.RetryMultiplier < 0 {
			return fmt.Errorf("sink %q: retry multiplier must be >= 0", sink.Name)
		}
	}

	if len(Config.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	targetNames := make(map[string]bool, len(Config.Targets))
	for _, target := range Config.Targets {
		if target.Name == "" {
			return fmt.Errorf("target name is required")
		}
		if targetNames[target.Name] {
			return fmt.Errorf("duplicate target name: %s", target.Name)
		}
		targetNames[target.Name] = true

		if target.Table == "" {
			return fmt.Errorf("target %q: table is required", target.Name)
		}
		if len(target.Columns) == 0 {
			return fmt.Errorf("target %q: at least one column is required", target.Name)
		}
		if target.Template == "" {
			return fmt.Errorf("target %q: template path is required", target.Name)
		}
		if target.Output == "" {
			return fmt.Errorf("target %q: output path is required", target.Name)
		}
		if target.Mode != "" && !modePattern.MatchString(target.Mode) {
			return fmt.Errorf("target %q: invalid file mode %q", target.Name, target.Mode)
		}
	}

	return nil
}
