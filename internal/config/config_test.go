package config

import "testing"

func TestDefaultsFillsZeroValues(t *testing.T) {
	var c Config
	c.Defaults()

	if c.Web.HTTP == "" {
		t.Fatal("expected a default web.http address")
	}
	if c.Storage.DataDir == "" {
		t.Fatal("expected a default storage.dataDir")
	}
	if c.Logger.Level != "info" {
		t.Fatalf("expected default logger level info, got %s", c.Logger.Level)
	}
	if c.Expiry.SessionTTL != defaultSessionTTL {
		t.Fatalf("expected default session TTL, got %s", c.Expiry.SessionTTL)
	}
}

func TestValidateRejectsMissingWebAddr(t *testing.T) {
	c := Config{Storage: Storage{InMemory: true}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for missing web.http")
	}
}

func TestValidateRejectsMissingDataDirWithoutInMemory(t *testing.T) {
	c := Config{Web: Web{HTTP: "127.0.0.1:8443"}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for missing storage.dataDir")
	}
}

func TestValidateAcceptsInMemoryWithoutDataDir(t *testing.T) {
	c := Config{Web: Web{HTTP: "127.0.0.1:8443"}, Storage: Storage{InMemory: true}}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsBadLoggerLevel(t *testing.T) {
	c := Config{
		Web:     Web{HTTP: "127.0.0.1:8443"},
		Storage: Storage{InMemory: true},
		Logger:  Logger{Level: "verbose"},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for invalid logger level")
	}
}
