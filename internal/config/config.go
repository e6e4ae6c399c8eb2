package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds the application's required startup settings: database
// connection, HTTP port, and the tunables that govern hold expiry, the
// deadlock retry policy, and the idempotent webhook contention window.
type Config struct {
	Env    string
	Port   string
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	HoldTTL                time.Duration
	HoldSweepBatchSize     int
	HoldSweepInterval      time.Duration
	MaxHoldQuantity        uint32
	PaymentWindow          time.Duration
	IdempotencyTTLWebhook  time.Duration
	IdempotencyTTLOrder    time.Duration
	IdempotencyTTLHold     time.Duration
	IdempotencyContention  time.Duration
	DeadlockRetries        int
	DeadlockBackoffMin     time.Duration
	WebhookHMACSecret      string
	WebhookSignatureHeader string
}

func Load() Config {
	return Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		HoldTTL:                time.Duration(intDefault("HOLD_TTL_SECONDS", 120)) * time.Second,
		HoldSweepBatchSize:      intDefault("HOLD_SWEEP_BATCH_SIZE", 100),
		HoldSweepInterval:       time.Duration(intDefault("HOLD_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		MaxHoldQuantity:         uint32(intDefault("MAX_HOLD_QUANTITY", 10)),
		PaymentWindow:           time.Duration(intDefault("PAYMENT_WINDOW_MINUTES", 30)) * time.Minute,
		IdempotencyTTLWebhook:   time.Duration(intDefault("IDEMPOTENCY_TTL_SECONDS_WEBHOOK", 86400)) * time.Second,
		IdempotencyTTLOrder:     time.Duration(intDefault("IDEMPOTENCY_TTL_SECONDS_ORDER", 3600)) * time.Second,
		IdempotencyTTLHold:      time.Duration(intDefault("IDEMPOTENCY_TTL_SECONDS_HOLD", 300)) * time.Second,
		IdempotencyContention:   time.Duration(intDefault("IDEMPOTENCY_CONTENTION_SECONDS", 10)) * time.Second,
		DeadlockRetries:         intDefault("DEADLOCK_RETRIES", 3),
		DeadlockBackoffMin:      time.Duration(intDefault("DEADLOCK_BACKOFF_MS", 100)) * time.Millisecond,
		WebhookHMACSecret:       must("WEBHOOK_HMAC_SECRET"),
		WebhookSignatureHeader:  envDefault("WEBHOOK_SIGNATURE_HEADER", "X-Webhook-Signature"),
	}
}

func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
