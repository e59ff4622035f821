package config

import (
	"path/filepath"
	"testing"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	r, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if r.Mode != "interpreted" {
		t.Fatalf("Mode = %q, want interpreted", r.Mode)
	}
	if r.Backend.Kind != "inmemory" {
		t.Fatalf("Backend.Kind = %q, want inmemory", r.Backend.Kind)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	r := DefaultRuntime()
	r.Mode = "proactive0"
	r.Backend = BackendConfig{Kind: "redis", Addr: "127.0.0.1:6379"}

	if err := r.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Mode != "proactive0" || loaded.Backend.Addr != "127.0.0.1:6379" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	r := DefaultRuntime()
	r.Mode = "bogus"
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for unknown mode")
	}
}

func TestValidateRequiresAddrForRedis(t *testing.T) {
	r := DefaultRuntime()
	r.Backend = BackendConfig{Kind: "redis"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for redis backend with no addr")
	}
}
