package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REMOTE_URL", "http://remote.test")

	cfg, err := Load(Overrides{EnvFile: "/nonexistent/.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RemoteURL != "http://remote.test" {
		t.Errorf("RemoteURL = %q, want %q", cfg.RemoteURL, "http://remote.test")
	}
	if cfg.HTTPAddr != ":8090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8090")
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.PollDeadline != 30*time.Minute {
		t.Errorf("PollDeadline = %v, want 30m", cfg.PollDeadline)
	}
	if cfg.UploadAttempts != 3 {
		t.Errorf("UploadAttempts = %d, want 3", cfg.UploadAttempts)
	}
	if cfg.ArchiveEnabled() {
		t.Error("ArchiveEnabled() = true without a bucket")
	}
	if cfg.MQTTEnabled() {
		t.Error("MQTTEnabled() = true without a broker URL")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// REMOTE_URL unset
	_, err := Load(Overrides{EnvFile: "/nonexistent/.env"})
	if err == nil {
		t.Fatal("Load without REMOTE_URL should fail")
	}
}

func TestLoad_OverridesBeatEnv(t *testing.T) {
	t.Setenv("REMOTE_URL", "http://env.test")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(Overrides{
		EnvFile:   "/nonexistent/.env",
		HTTPAddr:  ":7000",
		RemoteURL: "http://flag.test",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, want flag value :7000", cfg.HTTPAddr)
	}
	if cfg.RemoteURL != "http://flag.test" {
		t.Errorf("RemoteURL = %q, want flag value", cfg.RemoteURL)
	}
	// Env wins where no flag is given
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want env value debug", cfg.LogLevel)
	}
}
