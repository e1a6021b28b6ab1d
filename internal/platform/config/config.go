package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, grouped per concern so main stays lean.
type Config struct {
	Environment string
	LogLevel    string
	Server      Server
	Auth        Auth
	Database    Database
	Redis       RedisConfig
	Kafka       Kafka
	ObjectStore ObjectStore
	Credential  Credential
	Sweep       Sweep
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
}

// Database is empty when the in-memory store should be used.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is empty when the stats cache is disabled.
type RedisConfig struct {
	URL           string
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	StatsCacheTTL time.Duration
}

// Kafka is empty when the outbox relay is disabled.
type Kafka struct {
	Brokers           string
	Topic             string
	Acks              string
	Partitions        int32
	ReplicationFactor int16
	PollInterval      time.Duration
	BatchSize         int
	Retention         time.Duration
}

// ObjectStore is disabled when Bucket is empty; export routes then answer 501.
type ObjectStore struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

// Credential is the issuance and verification policy.
type Credential struct {
	BaseURL               string
	ChecksumKey           string
	DefaultValidityMonths int
	InitialStatus         string
	MaxBatch              int
	BulkWorkers           int
	ItemTimeout           time.Duration
	StoreTimeout          time.Duration
	RetryInitialInterval  time.Duration
}

// Sweep schedules the background expiry transition.
type Sweep struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// FromEnv loads .env when present, then reads the environment.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	r := &reader{}
	cfg := Config{
		Environment: r.str("ENVIRONMENT", "development"),
		LogLevel:    r.str("LOG_LEVEL", "info"),
		Server: Server{
			Addr:            r.str("FEDCRED_ADDR", ":8080"),
			RequestTimeout:  r.duration("REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustedProxies:  r.list("TRUSTED_PROXIES"),
		},
		Auth: Auth{
			JWTSigningKey: r.str("JWT_SIGNING_KEY", ""),
			JWTIssuer:     r.str("JWT_ISSUER", "fedcred"),
			JWTAudience:   r.str("JWT_AUDIENCE", "fedcred-api"),
			TokenTTL:      r.duration("TOKEN_TTL", 12*time.Hour),
		},
		Database: Database{
			URL:             r.str("DATABASE_URL", ""),
			MaxOpenConns:    r.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    r.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:           r.str("REDIS_URL", ""),
			PoolSize:      r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns:  r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			StatsCacheTTL: r.duration("STATS_CACHE_TTL", 30*time.Second),
		},
		Kafka: Kafka{
			Brokers:           r.str("KAFKA_BROKERS", ""),
			Topic:             r.str("KAFKA_TOPIC", "fedcred.credential.events"),
			Acks:              r.str("KAFKA_ACKS", "all"),
			Partitions:        int32(r.int("KAFKA_PARTITIONS", 3)),
			ReplicationFactor: int16(r.int("KAFKA_REPLICATION_FACTOR", 1)),
			PollInterval:      r.duration("OUTBOX_POLL_INTERVAL", 200*time.Millisecond),
			BatchSize:         r.int("OUTBOX_BATCH_SIZE", 100),
			Retention:         r.duration("OUTBOX_RETENTION", 7*24*time.Hour),
		},
		ObjectStore: ObjectStore{
			Bucket:          r.str("S3_BUCKET", ""),
			Region:          r.str("S3_REGION", "us-east-1"),
			Endpoint:        r.str("S3_ENDPOINT", ""),
			AccessKeyID:     r.str("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: r.str("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    r.bool("S3_USE_PATH_STYLE", false),
			KeyPrefix:       r.str("S3_KEY_PREFIX", "credentials"),
		},
		Credential: Credential{
			BaseURL:               r.str("VERIFICATION_BASE_URL", "http://localhost:8080"),
			ChecksumKey:           r.str("CHECKSUM_KEY", ""),
			DefaultValidityMonths: r.int("CREDENTIAL_VALIDITY_MONTHS", 12),
			InitialStatus:         r.str("CREDENTIAL_INITIAL_STATUS", "active"),
			MaxBatch:              r.int("BULK_MAX_BATCH", 50),
			BulkWorkers:           r.int("BULK_WORKERS", 8),
			ItemTimeout:           r.duration("BULK_ITEM_TIMEOUT", 2*time.Second),
			StoreTimeout:          r.duration("STORE_TIMEOUT", 5*time.Second),
			RetryInitialInterval:  r.duration("READ_RETRY_INTERVAL", 50*time.Millisecond),
		},
		Sweep: Sweep{
			Enabled:   r.bool("SWEEP_ENABLED", true),
			Interval:  r.duration("SWEEP_INTERVAL", 15*time.Minute),
			BatchSize: r.int("SWEEP_BATCH_SIZE", 200),
		},
	}
	if err := r.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Auth.JWTSigningKey == "" {
		if c.Environment == "production" {
			return errors.New("JWT_SIGNING_KEY is required in production")
		}
	}
	switch c.Credential.InitialStatus {
	case "active", "pending":
	default:
		return fmt.Errorf("CREDENTIAL_INITIAL_STATUS must be active or pending, got %q", c.Credential.InitialStatus)
	}
	if len(c.Credential.ChecksumKey) > 64 {
		return errors.New("CHECKSUM_KEY must be at most 64 bytes")
	}
	if c.Credential.MaxBatch < 1 {
		return errors.New("BULK_MAX_BATCH must be positive")
	}
	return nil
}

// SigningKey returns the configured key, or a fixed development key outside production.
func (a Auth) SigningKey() string {
	if a.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		return "dev-secret-key-change-in-production"
	}
	return a.JWTSigningKey
}

// reader collects parse errors so every bad variable is reported at once.
type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	v := r.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) err() error {
	return errors.Join(r.errs...)
}
