package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Ledger.MaxURILen != 200 || cfg.Ledger.MaxReasonLen != 500 {
		t.Fatalf("unexpected limits: %+v", cfg.Ledger)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected base path %q", cfg.Server.BasePath)
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("ledger:\n  single_claimant: true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Ledger.SingleClaimant {
		t.Fatalf("expected single_claimant override")
	}
	if cfg.Ledger.MaxURILen != 200 {
		t.Fatalf("expected default max_uri_len, got %d", cfg.Ledger.MaxURILen)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"uri len":      "ledger:\n  max_uri_len: 0\n",
		"reason len":   "ledger:\n  max_reason_len: -1\n",
		"fallback pct": "disputes:\n  fallback_creator_pct: 101\n",
		"base path":    "server:\n  base_path: v0\n",
		"telemetry":    "telemetry:\n  enabled: true\n  service_name: \"\"\n",
		"yaml":         "ledger: [",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load optional: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	if err := os.WriteFile(filepath.Join(dir, "bountygraph.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
}
