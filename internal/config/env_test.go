package config

import "testing"

func TestReplaceEnvKeysSubstitutesDollarPrefixedFields(t *testing.T) {
	c := Config{DataPassphrase: "$SALITAD_TEST_PASSPHRASE"}

	getenv := func(key string) string {
		if key == "SALITAD_TEST_PASSPHRASE" {
			return "swordfish"
		}
		return ""
	}

	if err := replaceEnvKeys(&c, getenv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DataPassphrase != "swordfish" {
		t.Fatalf("expected substituted passphrase, got %q", c.DataPassphrase)
	}
}

func TestReplaceEnvKeysLeavesPlainValuesAlone(t *testing.T) {
	c := Config{DataPassphrase: "plain-value"}

	if err := replaceEnvKeys(&c, func(string) string { return "should-not-be-used" }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DataPassphrase != "plain-value" {
		t.Fatalf("expected value to be left alone, got %q", c.DataPassphrase)
	}
}
