// cmd/server/config.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	Port        string
	KnackAPIURL string
	KnackAppID  string
	KnackAPIKey string

	RedisAddr string
	JobTTL    time.Duration

	BatchSize         int
	BatchDelay        time.Duration
	PageSize          int
	StudentObject     string
	TargetFilterField string
	SanitizeErrors    bool

	ConsentObject      string
	ConsentEmailField  string
	ConsentDomains     []string
	ConsentPassword    string
	ConsentRedirectURL string

	NATSURL      string
	EventSubject string
}

func loadConfig() (config, error) {
	cfg := config{
		Port:              getenv("PORT", "8080"),
		KnackAPIURL:       getenv("KNACK_API_URL", "https://api.knack.com/v1"),
		KnackAppID:        getenv("KNACK_APPLICATION_ID", ""),
		KnackAPIKey:       getenv("KNACK_API_KEY", ""),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		StudentObject:     getenv("STUDENT_OBJECT", "object_3"),
		TargetFilterField: getenv("TARGET_FILTER_FIELD", "field_122"),
		SanitizeErrors:    getenvBool("SANITIZE_UPSTREAM_ERRORS", false),
		ConsentObject:     getenv("CONSENT_OBJECT", "object_10"),
		ConsentEmailField: getenv("CONSENT_EMAIL_FIELD", "field_84"),
		ConsentPassword:   getenv("CONSENT_PASSWORD", ""),
		ConsentRedirectURL: getenv("CONSENT_REDIRECT_URL",
			"https://vespaacademy.knack.com/vespa-academy#home/"),
		NATSURL:      getenv("NATS_URL", ""),
		EventSubject: getenv("EVENT_SUBJECT", "portal.bulkupdate.events"),
	}

	ttl, err := parsePositiveInt(getenv("JOB_TTL_SECONDS", "3600"), "JOB_TTL_SECONDS")
	if err != nil {
		return config{}, err
	}
	cfg.JobTTL = time.Duration(ttl) * time.Second

	batchSize, err := parsePositiveInt(getenv("BATCH_SIZE", "25"), "BATCH_SIZE")
	if err != nil {
		return config{}, err
	}
	cfg.BatchSize = batchSize

	delayMS, err := parseNonNegativeInt(getenv("BATCH_DELAY_MS", "2000"), "BATCH_DELAY_MS")
	if err != nil {
		return config{}, err
	}
	cfg.BatchDelay = time.Duration(delayMS) * time.Millisecond

	pageSize, err := parsePositiveInt(getenv("PAGE_SIZE", "1000"), "PAGE_SIZE")
	if err != nil {
		return config{}, err
	}
	cfg.PageSize = pageSize

	for _, domain := range strings.Split(getenv("CONSENT_ALLOWED_DOMAINS", "mmu.ac.uk,stu.mmu.ac.uk"), ",") {
		if domain = strings.TrimSpace(domain); domain != "" {
			cfg.ConsentDomains = append(cfg.ConsentDomains, domain)
		}
	}

	return cfg, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseNonNegativeInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %d)", name, v)
	}
	return v, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}
