package utils

import (
	"errors"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		ok      bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "cuda", mutate: func(c *Config) { c.Device = "cuda" }, wantErr: ErrDeviceUnavailable},
		{name: "unknown device", mutate: func(c *Config) { c.Device = "tpu" }},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }},
		{name: "no artifact dir", mutate: func(c *Config) { c.ArtifactDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&cfg)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseLists(t *testing.T) {
	ints, err := ParseIntList("32, 128 512")
	if err != nil {
		t.Fatal(err)
	}
	if len(ints) != 3 || ints[2] != 512 {
		t.Fatalf("ints = %v", ints)
	}
	floats, err := ParseFloatList("0.1,0.15,0.3")
	if err != nil {
		t.Fatal(err)
	}
	if len(floats) != 3 || floats[1] != 0.15 {
		t.Fatalf("floats = %v", floats)
	}
	if _, err := ParseIntList("1,x"); err == nil {
		t.Fatal("expected error for non-integer")
	}
}
