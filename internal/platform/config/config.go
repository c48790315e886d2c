package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr       string
	AdminToken string
	// Environment is "dev" or "prod". Dev enables the token issuing endpoint
	// and logs OTP codes.
	Environment string
	LogLevel    string

	Auth       Auth
	Storage    Storage
	Postgres   Postgres
	Redis      Redis
	Minio      Minio
	Kafka      Kafka
	Compliance Compliance
	Documents  Documents
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// Storage selects the document store backend: "file", "postgres" or "memory".
type Storage struct {
	Backend string
	FileDir string
}

type Postgres struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Minio configures the blob store for document text. An empty endpoint with
// the postgres backend stores text under Storage.FileDir instead.
type Minio struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type Compliance struct {
	EvaluationTimeout time.Duration
	// CacheTTL of zero disables the verdict cache.
	CacheTTL          time.Duration
	CacheSize         int
	CatalogFile       string
	RolesFile         string
}

type Documents struct {
	TemplatesFile   string
	GenerateTimeout time.Duration
	SweepInterval   time.Duration
	RequireOTP      bool
	OTPTTL          time.Duration
}

func (s Server) IsDev() bool { return s.Environment != "prod" }

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        env("SIGNET_ADDR", ":8080"),
		AdminToken:  os.Getenv("ADMIN_API_TOKEN"),
		Environment: env("SIGNET_ENV", "dev"),
		LogLevel:    env("LOG_LEVEL", "info"),
		Auth: Auth{
			// Use a default for development - should be overridden in production
			JWTSigningKey: env("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        env("JWT_ISSUER", "signet"),
			Audience:      env("JWT_AUDIENCE", "signet-api"),
		},
		Storage: Storage{
			Backend: env("DOCUMENT_STORE", "file"),
			FileDir: env("DOCUMENT_DIR", "./data/documents"),
		},
		Postgres: Postgres{
			DSN:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Minio: Minio{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    env("MINIO_BUCKET", "signet-documents"),
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		},
		Kafka: Kafka{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   env("KAFKA_DOCUMENT_TOPIC", "document-events"),
		},
		Compliance: Compliance{
			EvaluationTimeout: envDuration("COMPLIANCE_EVAL_TIMEOUT", 2*time.Second),
			CacheTTL:          envDuration("COMPLIANCE_CACHE_TTL", 0),
			CacheSize:         envInt("COMPLIANCE_CACHE_SIZE", 4096),
			CatalogFile:       os.Getenv("COMPLIANCE_CATALOG_FILE"),
			RolesFile:         os.Getenv("RBAC_ROLES_FILE"),
		},
		Documents: Documents{
			TemplatesFile:   os.Getenv("DOCUMENT_TEMPLATES_FILE"),
			GenerateTimeout: envDuration("DOCUMENT_GENERATE_TIMEOUT", 5*time.Second),
			SweepInterval:   envDuration("DOCUMENT_SWEEP_INTERVAL", time.Minute),
			RequireOTP:      os.Getenv("SIGNING_REQUIRE_OTP") == "true",
			OTPTTL:          envDuration("SIGNING_OTP_TTL", 10*time.Minute),
		},
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
