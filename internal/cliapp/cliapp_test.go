package cliapp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateCommandAcceptsWellFormedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leshy.toml")
	contents := `
listen_address = "0.0.0.0:53"
default_upstream = ["1.1.1.1:53"]
route_failure_mode = "fallback"

[[zones]]
name = "corp-vpn"
dns_servers = ["10.10.0.1:53"]
mode = "inclusive"
domains = ["corp.example.com"]
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRootCommand()
	root.SetArgs([]string{"validate", "-c", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateCommandRejectsMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leshy.toml")
	if err := os.WriteFile(path, []byte("not valid toml [[["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRootCommand()
	root.SetArgs([]string{"validate", "-c", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected an error for malformed config")
	}
}
