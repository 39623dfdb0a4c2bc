package game

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DBPath == "" {
		t.Fatal("default db path missing")
	}
	if cfg.OracleTimeout <= 0 {
		t.Fatal("default oracle timeout missing")
	}
	if cfg.ContextWindowTurns != 5 {
		t.Fatalf("default context window = %d, want 5", cfg.ContextWindowTurns)
	}
}

func TestParseConfigFlagOverrides(t *testing.T) {
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "/tmp/override.db", "-oracle", "http://oracle:9000"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.OracleURL != "http://oracle:9000" {
		t.Fatalf("oracle url = %q", cfg.OracleURL)
	}
}
