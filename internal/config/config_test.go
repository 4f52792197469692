package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != "8080" || cfg.WorkerPort != "8082" || cfg.SchedPort != "8081" {
		t.Errorf("ports = %s/%s/%s", cfg.APIPort, cfg.WorkerPort, cfg.SchedPort)
	}
	if cfg.WorkerPollInterval != 5*time.Second {
		t.Errorf("WorkerPollInterval = %s", cfg.WorkerPollInterval)
	}
	if !cfg.ResolveRedirects {
		t.Error("redirects must be resolved by default")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("STALE_PENDING_AFTER", "15m")
	t.Setenv("RESOLVE_REDIRECTS", "false")
	t.Setenv("WIKI_MAXLAG", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != "9999" {
		t.Errorf("APIPort = %s", cfg.APIPort)
	}
	if cfg.StalePendingAfter != 15*time.Minute {
		t.Errorf("StalePendingAfter = %s", cfg.StalePendingAfter)
	}
	if cfg.ResolveRedirects {
		t.Error("ResolveRedirects = true, want false")
	}
	if cfg.WikiMaxlag != 3 {
		t.Errorf("WikiMaxlag = %d", cfg.WikiMaxlag)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("WORKER_POLL_INTERVAL", "0s")
	if _, err := Load(); err == nil {
		t.Error("expected error for zero poll interval")
	}

	t.Setenv("WORKER_POLL_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for unparsable duration")
	}
}
