package main

import (
	"log/slog"
	"testing"

	intconfig "github.com/dorky-robot/salita-mesh/internal/config"
)

func TestApplyConfigOverridesWebHTTPAddr(t *testing.T) {
	c := intconfig.Config{}
	applyConfigOverrides(serveOptions{webHTTPAddr: "0.0.0.0:9999"}, &c)

	if c.Web.HTTP != "0.0.0.0:9999" {
		t.Fatalf("expected override to apply, got %q", c.Web.HTTP)
	}
}

func TestApplyConfigOverridesLeavesConfigAlone(t *testing.T) {
	c := intconfig.Config{Web: intconfig.Web{HTTP: "127.0.0.1:8443"}}
	applyConfigOverrides(serveOptions{}, &c)

	if c.Web.HTTP != "127.0.0.1:8443" {
		t.Fatalf("expected config untouched, got %q", c.Web.HTTP)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for input, want := range cases {
		got, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseLogLevelRejectsUnknown(t *testing.T) {
	if _, err := parseLogLevel("verbose"); err == nil {
		t.Fatal("expected an error for an unsupported log level")
	}
}
