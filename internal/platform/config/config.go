package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the engine.
type Server struct {
	Addr          string
	JWTSigningKey string

	// SettlementTimeout is the window between purchase creation and the
	// settlement deadline. After the deadline the buyer may self-refund.
	SettlementTimeout time.Duration

	// Treasury receives released escrow on settlement.
	TreasuryAccount string

	// Role table principals. Admin drives back-office syncs, Oracle confirms
	// off-asset delivery.
	AdminPrincipal  string
	OraclePrincipal string

	// SyncAPIKeyHash is the bcrypt hash of the API key the synchronizer uses
	// to poll the event log. Empty disables the event endpoints.
	SyncAPIKeyHash string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig configures the durable event outbox store.
type PostgresConfig struct {
	DSN string
}

// RedisConfig configures the optional receipt cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the outbox relay that mirrors events to the
// synchronizer's topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("EQUILEX_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	settlementTimeout := durationFromEnv("SETTLEMENT_TIMEOUT", 72*time.Hour)

	treasury := os.Getenv("TREASURY_ACCOUNT")
	if treasury == "" {
		treasury = "treasury"
	}

	admin := os.Getenv("ADMIN_PRINCIPAL")
	if admin == "" {
		admin = "backoffice"
	}
	oracle := os.Getenv("ORACLE_PRINCIPAL")
	if oracle == "" {
		oracle = "settlement-oracle"
	}

	return Server{
		Addr:              addr,
		JWTSigningKey:     jwtSigningKey,
		SettlementTimeout: settlementTimeout,
		TreasuryAccount:   treasury,
		AdminPrincipal:    admin,
		OraclePrincipal:   oracle,
		SyncAPIKeyHash:    os.Getenv("SYNC_API_KEY_HASH"),
		Postgres: PostgresConfig{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intFromEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intFromEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationFromEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationFromEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationFromEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   topicFromEnv(),
		},
	}
}

func topicFromEnv() string {
	topic := os.Getenv("KAFKA_EVENTS_TOPIC")
	if topic == "" {
		topic = "equilex.events"
	}
	return topic
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
