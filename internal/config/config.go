package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Keycloak  KeycloakConfig
	RateLimit RateLimitConfig
	Render    RenderConfig
	Tracing   TracingConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig is optional; with an empty URI the service keeps templates
// and documents in memory.
type MongoDBConfig struct {
	URI                 string
	Database            string
	Timeout             time.Duration
	TemplatesCollection string
	DocumentsCollection string
}

// SQLiteConfig selects a SQLite template store when Path is set and no
// MongoDB URI is configured.
type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr is host:port, or empty when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// MinIOConfig enables the URL-producing rendering strategy when Endpoint is set.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
	// Insecure accepts tokens without signature verification. Integration
	// environments only.
	Insecure bool
}

// Issuer is the realm issuer URL, or empty when Keycloak is not configured.
func (k KeycloakConfig) Issuer() string {
	if k.URL == "" || k.Realm == "" {
		return ""
	}
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type RateLimitConfig struct {
	Enabled  bool
	RPS      float64
	Burst    int
	UseRedis bool
	Window   time.Duration
}

type RenderConfig struct {
	SchemaDir        string
	PreviewURLExpiry time.Duration
	SeedFixtures     bool
	SanitizeHTML     bool
	Timeout          time.Duration
}

// TracingConfig enables OTLP span export when OTLPEndpoint is set.
type TracingConfig struct {
	OTLPEndpoint string
	Insecure     bool
	SampleRate   float64
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MONGODB_DATABASE", "docrender")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MONGODB_TEMPLATES_COLLECTION", "document_templates")
	viper.SetDefault("MONGODB_DOCUMENTS_COLLECTION", "documents")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("MINIO_BUCKET", "docrender-previews")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("RENDER_PREVIEW_URL_EXPIRY_MINUTES", 15)
	viper.SetDefault("RENDER_SEED_FIXTURES", true)
	viper.SetDefault("RENDER_SANITIZE_HTML", true)
	viper.SetDefault("RENDER_TIMEOUT_SECONDS", 30)
	viper.SetDefault("OTEL_SAMPLE_RATE", 1.0)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:                 viper.GetString("MONGODB_URI"),
			Database:            viper.GetString("MONGODB_DATABASE"),
			Timeout:             time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
			TemplatesCollection: viper.GetString("MONGODB_TEMPLATES_COLLECTION"),
			DocumentsCollection: viper.GetString("MONGODB_DOCUMENTS_COLLECTION"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("SQLITE_PATH"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		Keycloak: KeycloakConfig{
			URL:      viper.GetString("KEYCLOAK_URL"),
			Realm:    viper.GetString("KEYCLOAK_REALM"),
			ClientID: viper.GetString("KEYCLOAK_CLIENT_ID"),
			Insecure: viper.GetBool("KEYCLOAK_INSECURE"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:      viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:    viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis: viper.GetBool("RATE_LIMIT_USE_REDIS"),
			Window:   time.Duration(viper.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		Render: RenderConfig{
			SchemaDir:        viper.GetString("RENDER_SCHEMA_DIR"),
			PreviewURLExpiry: time.Duration(viper.GetInt("RENDER_PREVIEW_URL_EXPIRY_MINUTES")) * time.Minute,
			SeedFixtures:     viper.GetBool("RENDER_SEED_FIXTURES"),
			SanitizeHTML:     viper.GetBool("RENDER_SANITIZE_HTML"),
			Timeout:          time.Duration(viper.GetInt("RENDER_TIMEOUT_SECONDS")) * time.Second,
		},
		Tracing: TracingConfig{
			OTLPEndpoint: viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:     viper.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			SampleRate:   viper.GetFloat64("OTEL_SAMPLE_RATE"),
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	if c.RateLimit.Enabled && c.RateLimit.UseRedis && c.Redis.Addr() == "" {
		return fmt.Errorf("config: RATE_LIMIT_USE_REDIS requires REDIS_HOST")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_RPS must be positive")
	}
	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		return fmt.Errorf("config: MINIO_BUCKET is required with MINIO_ENDPOINT")
	}
	if c.Render.PreviewURLExpiry <= 0 {
		return fmt.Errorf("config: RENDER_PREVIEW_URL_EXPIRY_MINUTES must be positive")
	}
	return nil
}
