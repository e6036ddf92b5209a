package encoding

import (
	"testing"
)

func TestMarshal_Basic(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"string", "hello world"},
		{"int", 12345},
		{"uint64", uint64(0xdeadbeef)},
		{"bool", true},
		{"slice", []string{"a", "b", "c"}},
		{"map", map[string]interface{}{"target": "domains_modified", "bytes": 42}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.input)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if len(data) == 0 {
				t.Error("Expected non-empty result")
			}
		})
	}
}

func TestRoundTrip_Struct(t *testing.T) {
	type record struct {
		Target   string `msgpack:"target"`
		Checksum uint64 `msgpack:"checksum"`
		Bytes    int    `msgpack:"bytes"`
	}

	in := record{Target: "domains_modified", Checksum: 0xdeadbeef, Bytes: 42}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out record
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

func TestUnmarshal_LooseInterfaceDecoding(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"name": "example.com"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out map[string]interface{}
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// Strings must decode as strings, not []byte
	if _, ok := out["name"].(string); !ok {
		t.Errorf("expected string value, got %T", out["name"])
	}
}
