package config

import (
	"errors"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"spendo-api"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,DELETE,OPTIONS"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"spendo"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Auth Enabled - when false, allows the X-User-ID header for testing
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"true"`
	// HS256 secret used by the hosted auth provider to sign access tokens
	AuthJWTSecret string `env:"AUTH_JWT_SECRET" env-default:""`
	// OIDC issuer, used instead of the JWT secret when set
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// OIDC client ID (audience)
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`

	// Frontend base URL that OAuth callbacks redirect back to
	AppURL string `env:"APP_URL" env-default:"http://localhost:5173"`
	// Frontend page listing integrations
	AppIntegrationsPath string `env:"APP_INTEGRATIONS_PATH" env-default:"/integrations"`

	// Fortnox OAuth client credentials. Left empty they surface as configuration errors per request.
	FortnoxClientID     string `env:"FORTNOX_CLIENT_ID" env-default:""`
	FortnoxClientSecret string `env:"FORTNOX_CLIENT_SECRET" env-default:""`
	FortnoxAuthURL      string `env:"FORTNOX_AUTH_URL" env-default:"https://apps.fortnox.se/oauth-v1/auth"`
	FortnoxTokenURL     string `env:"FORTNOX_TOKEN_URL" env-default:"https://apps.fortnox.se/oauth-v1/token"`
	FortnoxAPIURL       string `env:"FORTNOX_API_URL" env-default:"https://api.fortnox.se/3"`
	FortnoxRedirectURI  string `env:"FORTNOX_REDIRECT_URI" env-default:"http://localhost:3000/api/v1/integrations/fortnox/callback"`
	FortnoxScopes       string `env:"FORTNOX_SCOPES" env-default:"companyinformation supplierinvoice supplier"`
	FortnoxPageSize     int    `env:"FORTNOX_PAGE_SIZE" env-default:"500"`

	// Kleer API
	KleerAPIURL        string        `env:"KLEER_API_URL" env-default:"https://api.kleer.se/v1"`
	KleerPageSize      int           `env:"KLEER_PAGE_SIZE" env-default:"100"`
	KleerVerifyTimeout time.Duration `env:"KLEER_VERIFY_TIMEOUT" env-default:"10s"`

	// Outbound HTTP timeout for provider calls
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" env-default:"30s"`
	// Requests allowed per tenant and provider inside UpstreamRateWindow. Zero disables throttling.
	UpstreamRateLimit int64 `env:"UPSTREAM_RATE_LIMIT" env-default:"25"`
	// Sliding window for UpstreamRateLimit
	UpstreamRateWindow time.Duration `env:"UPSTREAM_RATE_WINDOW" env-default:"5s"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for sync lifecycle events
	KafkaSyncTopic string `env:"KAFKA_SYNC_TOPIC" env-default:"expense-syncs"`
	// Upper bound on publishing one sync event
	KafkaPublishTimeout time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" env-default:"2s"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
