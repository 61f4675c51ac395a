package main

import (
	"os"
	"path/filepath"
	"testing"

	"classcast/internal/app"
	"classcast/internal/config"
)

// FUNCTIONAL VALIDATION TEST: Configuration integration without database
func TestApplication_ConfigurationValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}

	cfg.HTTP.Port = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Invalid config should fail validation")
	}
}

// TECHNICAL VALIDATION TEST: Error handling patterns
func TestApplication_ErrorHandling(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*config.Config)
	}{
		{
			name:   "invalid_port",
			modify: func(c *config.Config) { c.HTTP.Port = 0 },
		},
		{
			name:   "empty_db_path",
			modify: func(c *config.Config) { c.Database.Path = "" },
		},
		{
			name:   "invalid_timeout",
			modify: func(c *config.Config) { c.Database.Timeout = 0 },
		},
		{
			name:   "unknown_scope",
			modify: func(c *config.Config) { c.Broadcast.Scope = "room" },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Database.Path = filepath.Join(t.TempDir(), "journal.db")
			tc.modify(cfg)

			application, err := app.NewApplication(cfg)
			if err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
			if application != nil {
				t.Error("Constructor should not return application with invalid config")
			}
		})
	}
}

// FUNCTIONAL VALIDATION TEST: Config precedence function integration
func TestApplication_ConfigPrecedence(t *testing.T) {
	cfg := config.LoadConfigWithPrecedence("")
	if err := cfg.Validate(); err != nil {
		t.Errorf("Precedence config should be valid: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.HTTP.Port)
	}
}

func TestRun_RejectsBadFlags(t *testing.T) {
	if err := run([]string{"-no-such-flag"}); err == nil {
		t.Error("expected unknown flag to fail")
	}
}

func TestRun_RejectsUnreadableEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "env-dir")
	if err := os.Mkdir(envPath, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	if err := run([]string{"-env", envPath}); err == nil {
		t.Error("expected a directory passed as .env to fail")
	}
}
