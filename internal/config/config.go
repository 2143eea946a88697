package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	Booking    BookingConfig
	Payout     PayoutConfig
	Reconciler ReconcilerConfig
	Stripe     StripeConfig
	Telemetry  TelemetryConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// PublicBaseURL prefixes share links encoded into booking QR codes.
	PublicBaseURL  string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	// AutoMigrate applies the SQL migrations in MigrationsDir at startup.
	AutoMigrate   bool
	MigrationsDir string
}

// DSN is the postgres connection URL shared by the service, migrations and tooling.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.Username + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Database + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	BookingEvents    string
	PaymentEvents    string
	PayoutEvents     string
	Reconciliation   string
	GatewayCallbacks string
}

type AuthConfig struct {
	// JWTSecret enables HS256 bearer tokens, used by tests and local tooling.
	JWTSecret string
	JWTIssuer string
	// OIDCIssuer switches verification to the hosted identity provider.
	OIDCIssuer   string
	OIDCClientID string
	RoleClaim    string
}

type BookingConfig struct {
	PlatformFeePercent    string
	AllowCompletedRefunds bool
	CodeRetries           int
}

type PayoutConfig struct {
	BankTransferETA time.Duration
	MobileMoneyETA  time.Duration
	LockTTL         time.Duration
}

type ReconcilerConfig struct {
	Enabled   bool
	Schedule  string
	LockTTL   time.Duration
	BatchSize int
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

type LogConfig struct {
	Level string
	Dir   string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8080"),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			Username:      getEnv("DB_USERNAME", "torashaout"),
			Password:      getEnv("DB_PASSWORD", "torashaout"),
			Database:      getEnv("DB_NAME", "torashaout"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getEnv("KAFKA_GROUP_ID", "torashaout-booking"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BookingEvents:    getEnv("KAFKA_TOPIC_BOOKINGS", "booking-events"),
				PaymentEvents:    getEnv("KAFKA_TOPIC_PAYMENTS", "payment-events"),
				PayoutEvents:     getEnv("KAFKA_TOPIC_PAYOUTS", "payout-events"),
				Reconciliation:   getEnv("KAFKA_TOPIC_RECONCILIATION", "booking-reconciliation"),
				GatewayCallbacks: getEnv("KAFKA_TOPIC_GATEWAY_CALLBACKS", "payment-gateway-callbacks"),
			},
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			JWTIssuer:    getEnv("JWT_ISSUER", "torashaout"),
			OIDCIssuer:   getEnv("OIDC_ISSUER", ""),
			OIDCClientID: getEnv("OIDC_CLIENT_ID", ""),
			RoleClaim:    getEnv("AUTH_ROLE_CLAIM", "role"),
		},
		Booking: BookingConfig{
			PlatformFeePercent:    getEnv("PLATFORM_FEE_PERCENT", "0.25"),
			AllowCompletedRefunds: getEnvBool("ALLOW_COMPLETED_REFUNDS", true),
			CodeRetries:           getEnvInt("BOOKING_CODE_RETRIES", 3),
		},
		Payout: PayoutConfig{
			BankTransferETA: getEnvDuration("PAYOUT_BANK_TRANSFER_ETA", 72*time.Hour),
			MobileMoneyETA:  getEnvDuration("PAYOUT_MOBILE_MONEY_ETA", 2*time.Hour),
			LockTTL:         getEnvDuration("PAYOUT_LOCK_TTL", 10*time.Second),
		},
		Reconciler: ReconcilerConfig{
			Enabled:   getEnvBool("RECONCILER_ENABLED", true),
			Schedule:  getEnv("RECONCILER_SCHEDULE", "@every 1m"),
			LockTTL:   getEnvDuration("RECONCILER_LOCK_TTL", 50*time.Second),
			BatchSize: getEnvInt("RECONCILER_BATCH_SIZE", 100),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvBool("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "torashaout-booking"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Dir:   getEnv("LOG_DIR", "logs"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
