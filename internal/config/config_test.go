package config

import (
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TARGET_SCRIPT", "")
	t.Setenv("MAX_CONCURRENT_ENGINES", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TargetScript != "Devanagari" {
		t.Errorf("Expected Devanagari, got %s", cfg.TargetScript)
	}
	if len(cfg.TargetLanguages) != 2 || cfg.TargetLanguages[0] != "hin" {
		t.Errorf("Unexpected languages: %v", cfg.TargetLanguages)
	}
	if cfg.MaxConcurrentEngines != 3 {
		t.Errorf("Expected 3 concurrent engines, got %d", cfg.MaxConcurrentEngines)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TARGET_SCRIPT", "Bengali")
	t.Setenv("TARGET_LANGUAGES", "ben, eng")
	t.Setenv("MIN_CONFIDENCE", "0.8")
	t.Setenv("QUEUE_BACKEND", "ASYNQ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TargetScript != "Bengali" || cfg.MinConfidence != 0.8 || cfg.QueueBackend != "asynq" {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if strings.Join(cfg.TargetLanguages, "+") != "ben+eng" {
		t.Errorf("Unexpected languages: %v", cfg.TargetLanguages)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TargetScript:            "Devanagari",
			TargetLanguages:         []string{"hin"},
			MinScriptRate:           0.7,
			MinConfidence:           0.6,
			TableAlignmentThreshold: 0.7,
			MaxConcurrentEngines:    2,
			WorkerConcurrency:       1,
			FormTextCap:             500,
			AccuracyDBPath:          "db.json",
			QueueBackend:            "redis",
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"unknown script", func(c *Config) { c.TargetScript = "Klingon" }, "TARGET_SCRIPT"},
		{"rate out of range", func(c *Config) { c.MinScriptRate = 1.5 }, "MIN_SCRIPT_RATE"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentEngines = 0 }, "MAX_CONCURRENT_ENGINES"},
		{"no store", func(c *Config) { c.AccuracyDBPath = "" }, "ACCURACY_DB_PATH"},
		{"bad backend", func(c *Config) { c.QueueBackend = "kafka" }, "QUEUE_BACKEND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
