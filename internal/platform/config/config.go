package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	id "helixpass/pkg/domain"
)

// Server captures process-level configuration. Built once in main and passed
// by reference into the orchestrator and gateway; there is no package-level
// mutable state holding operator identifiers.
type Server struct {
	Addr          string
	JWTSigningKey string

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	Ledger LedgerConfig

	// AssociationTimeout bounds how long a grant saga waits for the subject to
	// sign the collection association.
	AssociationTimeout time.Duration

	// ReconcileInterval is how often the reconciliation sweeper runs.
	ReconcileInterval time.Duration
}

// LedgerConfig names the ledger resources the system operates on. The
// operator account signs every mint, transfer, and log submission.
type LedgerConfig struct {
	OperatorAccount  string
	CollectionID     id.CollectionID
	IncentiveTokenID id.TokenID
	ConsentTopicID   string
	MaxRetries       uint64
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// RedisConfig mirrors the go-redis options we override.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OwnershipCacheTTL bounds staleness of cached credential ownership reads.
	OwnershipCacheTTL time.Duration
}

// KafkaConfig configures the best-effort audit stream echo.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:          envOr("HELIXPASS_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		Redis: RedisConfig{
			URL:               os.Getenv("REDIS_URL"),
			PoolSize:          envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:      envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:       5 * time.Second,
			ReadTimeout:       3 * time.Second,
			WriteTimeout:      3 * time.Second,
			OwnershipCacheTTL: envDuration("OWNERSHIP_CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "helixpass.audit.v1"),
		},
		Ledger: LedgerConfig{
			OperatorAccount:  os.Getenv("LEDGER_OPERATOR_ACCOUNT"),
			CollectionID:     id.CollectionID(os.Getenv("LEDGER_CONSENT_COLLECTION_ID")),
			IncentiveTokenID: id.TokenID(os.Getenv("LEDGER_INCENTIVE_TOKEN_ID")),
			ConsentTopicID:   os.Getenv("LEDGER_CONSENT_TOPIC_ID"),
			MaxRetries:       uint64(envInt("LEDGER_MAX_RETRIES", 4)),
			InitialBackoff:   envDuration("LEDGER_INITIAL_BACKOFF", 250*time.Millisecond),
			MaxBackoff:       envDuration("LEDGER_MAX_BACKOFF", 5*time.Second),
		},
		AssociationTimeout: envDuration("ASSOCIATION_TIMEOUT", 2*time.Minute),
		ReconcileInterval:  envDuration("RECONCILE_INTERVAL", time.Hour),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
