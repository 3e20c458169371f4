package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults fail validation: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"general": {"logLevel": "debug"},
		"telegram": {"token": "123:abc", "adminChatId": 42},
		"viber": {"webhookUrl": "https://hooks.example.com/viber", "timeoutSeconds": 10},
		"storage": {"dbPath": "/tmp/test.db"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Errorf("logLevel %q", cfg.General.LogLevel)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.AdminChatID != 42 {
		t.Errorf("telegram: %+v", cfg.Telegram)
	}
	if cfg.Viber.WebhookURL != "https://hooks.example.com/viber" || cfg.Viber.TimeoutSeconds != 10 {
		t.Errorf("viber: %+v", cfg.Viber)
	}
	// Unset fields keep their defaults.
	if cfg.Metrics.Addr != "127.0.0.1:9432" {
		t.Errorf("metrics addr default lost: %q", cfg.Metrics.Addr)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
general:
  logLevel: warn
telegram:
  token: "123:abc"
  adminChatId: 42
viber:
  timeoutSeconds: 15
storage:
  dbPath: /tmp/test.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.LogLevel != "warn" || cfg.Viber.TimeoutSeconds != 15 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "999:secret")
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "${TEST_BOT_TOKEN}"},
		"storage": {"dbPath": "/tmp/test.db"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "999:secret" {
		t.Fatalf("token %q, want expanded value", cfg.Telegram.Token)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_SET_VAR", "value")
	os.Unsetenv("TEST_UNSET_VAR")

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "x ${TEST_SET_VAR} y", "x value y"},
		{"unset no default", "x ${TEST_UNSET_VAR} y", "x ${TEST_UNSET_VAR} y"},
		{"unset with default", "x ${TEST_UNSET_VAR:-fallback} y", "x fallback y"},
		{"set with default", "x ${TEST_SET_VAR:-fallback} y", "x value y"},
		{"not a reference", "x $TEST_SET_VAR y", "x $TEST_SET_VAR y"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExpandEnvVars(tc.input); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.General.LogLevel = "verbose" }, "logLevel"},
		{"timeout too low", func(c *Config) { c.Viber.TimeoutSeconds = 0 }, "timeoutSeconds"},
		{"timeout too high", func(c *Config) { c.Viber.TimeoutSeconds = 600 }, "timeoutSeconds"},
		{"plain http webhook", func(c *Config) { c.Viber.WebhookURL = "http://hooks.example.com" }, "webhookUrl"},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }, "dbPath"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := Defaults()
	cfg.General.LogLevel = "warn"
	cfg.Telegram.Token = "123:abc"
	cfg.Viber.WebhookURL = "https://hooks.example.com/viber"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.General.LogLevel != "warn" || loaded.Viber.WebhookURL != cfg.Viber.WebhookURL {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
}
