package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	BaseURL     string

	SessionTTL    time.Duration
	FinishedLimit int

	NotifyInterval  time.Duration
	NotifyBatchSize int
	SMSProvider     string
	SMSWebhookToken string

	RateLimitPerMinute     int
	RateLimitBurst         int
	PageRateLimitPerMinute int
	PageRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		BaseURL:     baseURL,

		SessionTTL:    time.Duration(readInt("SESSION_TTL_HOURS", 8)) * time.Hour,
		FinishedLimit: readInt("FINISHED_HISTORY_LIMIT", 10),

		NotifyInterval:  time.Duration(readInt("NOTIFY_SCAN_INTERVAL_SECONDS", 30)) * time.Second,
		NotifyBatchSize: readInt("NOTIFY_BATCH_SIZE", 50),
		SMSProvider:     os.Getenv("SMS_PROVIDER"),
		SMSWebhookToken: os.Getenv("SMS_WEBHOOK_TOKEN"),

		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		PageRateLimitPerMinute: readInt("PAGE_RATE_LIMIT_PER_MIN", 60),
		PageRateLimitBurst:     readInt("PAGE_RATE_LIMIT_BURST", 20),
	}
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
