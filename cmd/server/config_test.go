// cmd/server/config_test.go
package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("BATCH_DELAY_MS", "")
	t.Setenv("JOB_TTL_SECONDS", "")
	t.Setenv("CONSENT_ALLOWED_DOMAINS", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.KnackAPIURL != "https://api.knack.com/v1" {
		t.Fatalf("unexpected knack api url: %s", cfg.KnackAPIURL)
	}
	if cfg.BatchSize != 25 || cfg.BatchDelay != 2*time.Second {
		t.Fatalf("unexpected batch settings: %d %s", cfg.BatchSize, cfg.BatchDelay)
	}
	if cfg.PageSize != 1000 {
		t.Fatalf("unexpected page size: %d", cfg.PageSize)
	}
	if cfg.JobTTL != time.Hour {
		t.Fatalf("unexpected job ttl: %s", cfg.JobTTL)
	}
	if cfg.StudentObject != "object_3" || cfg.TargetFilterField != "field_122" {
		t.Fatalf("unexpected student object settings: %s %s", cfg.StudentObject, cfg.TargetFilterField)
	}
	if cfg.ConsentObject != "object_10" || cfg.ConsentEmailField != "field_84" {
		t.Fatalf("unexpected consent object settings: %s %s", cfg.ConsentObject, cfg.ConsentEmailField)
	}
	if len(cfg.ConsentDomains) != 2 || cfg.ConsentDomains[0] != "mmu.ac.uk" || cfg.ConsentDomains[1] != "stu.mmu.ac.uk" {
		t.Fatalf("unexpected consent domains: %v", cfg.ConsentDomains)
	}
	if cfg.SanitizeErrors {
		t.Fatal("sanitize errors should default to off")
	}
}

func TestLoadConfigInvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "not-a-number")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for invalid BATCH_SIZE")
	}
}

func TestLoadConfigZeroBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for zero BATCH_SIZE")
	}
}

func TestLoadConfigZeroDelayAllowed(t *testing.T) {
	t.Setenv("BATCH_DELAY_MS", "0")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.BatchDelay != 0 {
		t.Fatalf("unexpected batch delay: %s", cfg.BatchDelay)
	}
}

func TestLoadConfigDomainsTrimmed(t *testing.T) {
	t.Setenv("CONSENT_ALLOWED_DOMAINS", " mmu.ac.uk , example.ac.uk ,")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if len(cfg.ConsentDomains) != 2 || cfg.ConsentDomains[1] != "example.ac.uk" {
		t.Fatalf("unexpected consent domains: %v", cfg.ConsentDomains)
	}
}
