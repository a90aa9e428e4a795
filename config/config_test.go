package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty collection url", mutate: func(c *Config) { c.CollectionURL = "" }},
		{name: "collection url without host", mutate: func(c *Config) { c.CollectionURL = "/sessions" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "selenium" }},
		{name: "zero scroll steps", mutate: func(c *Config) { c.ScrollStepsPerPage = 0 }},
		{name: "zero page budget", mutate: func(c *Config) { c.PageBudget = 0 }},
		{name: "resume page zero", mutate: func(c *Config) { c.ResumeFromPage = 0 }},
		{name: "negative pause", mutate: func(c *Config) { c.PauseBetweenSteps = -time.Second }},
		{name: "zero container scroll", mutate: func(c *Config) { c.ContainerScrollPx = 0 }},
		{name: "empty container selector", mutate: func(c *Config) { c.ContainerSelector = "" }},
		{name: "empty media marker", mutate: func(c *Config) { c.MediaMarkerSelector = "" }},
		{name: "empty next control xpath", mutate: func(c *Config) { c.NextControlXPath = "" }},
		{name: "zero advance attempts", mutate: func(c *Config) { c.MaxAdvanceAttempts = 0 }},
		{name: "zero readiness timeout", mutate: func(c *Config) { c.ReadinessTimeout = 0 }},
		{name: "backoff exceeds max", mutate: func(c *Config) {
			c.RetryBackoff = time.Minute
			c.RetryBackoffMax = time.Second
		}},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "postgres" }},
		{name: "sqlite without path", mutate: func(c *Config) { c.DBPath = "" }},
		{name: "es without address", mutate: func(c *Config) { c.Store = "es" }},
		{name: "es without index", mutate: func(c *Config) {
			c.Store = "es"
			c.ESAddress = "http://localhost:9200"
			c.ESIndex = ""
		}},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsESStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = "es"
	cfg.ESAddress = "http://localhost:9200"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("es config should validate: %v", err)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("CAPTURE_TEST_INT", "42")
	value, ok, err := EnvInt("CAPTURE_TEST_INT")
	if err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt = (%d, %v, %v), want (42, true, nil)", value, ok, err)
	}

	t.Setenv("CAPTURE_TEST_INT", "not-a-number")
	if _, _, err := EnvInt("CAPTURE_TEST_INT"); err == nil {
		t.Fatalf("expected parse error")
	}

	if _, ok, err := EnvInt("CAPTURE_TEST_INT_UNSET"); ok || err != nil {
		t.Fatalf("unset variable should report not present")
	}
}

func TestEnvString(t *testing.T) {
	t.Setenv("CAPTURE_TEST_STR", "hello")
	if value, ok := EnvString("CAPTURE_TEST_STR"); !ok || value != "hello" {
		t.Fatalf("EnvString = (%q, %v), want (hello, true)", value, ok)
	}

	t.Setenv("CAPTURE_TEST_STR", "")
	if _, ok := EnvString("CAPTURE_TEST_STR"); ok {
		t.Fatalf("empty value should report not present")
	}
}
