package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Shortener ShortenerConfig
	OAuth     OAuthConfig
	Session   SessionConfig
	Security  SecurityConfig
	Kafka     KafkaConfig
	OTel      OTelConfig
}

type AppConfig struct {
	Name     string
	Version  string
	Env      string
	LogLevel string
}

type ServerConfig struct {
	Port string
	Host string
}

type StorageConfig struct {
	Backend string // mongo or postgres
}

type MongoDBConfig struct {
	URI      string
	Database string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// DSN builds a key/value connection string accepted by pgx.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Name, p.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type ShortenerConfig struct {
	BaseURL        string
	RedirectStatus int // 301 or 302
	ValidSchemes   []string
	MaxAttempts    int
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Scopes       []string
	AllowSignup  bool
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
	Secure bool
}

type SecurityConfig struct {
	CreateRatePerMinute int
	LoginRatePerMinute  int
	AllowedOrigins      []string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string

	PublishTimeout   time.Duration
	FetchMaxWait     time.Duration
	OperationTimeout time.Duration
	ConsumeBackoff   time.Duration
}

type OTelConfig struct {
	Enabled  bool
	Endpoint string
}

// Load reads the configuration of the web server.
func Load() (*Config, error) {
	cfg := load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads the configuration of background workers, which need
// storage and Kafka but no OAuth client or session secret.
func LoadWorker() (*Config, error) {
	cfg := load()
	if err := cfg.validateShared(); err != nil {
		return nil, err
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_ENABLED and KAFKA_BROKERS are required by workers")
	}
	if strings.TrimSpace(cfg.Kafka.GroupID) == "" {
		return nil, fmt.Errorf("KAFKA_CLICK_GROUP_ID must not be empty")
	}
	return cfg, nil
}

func load() *Config {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	env := GetEnv("APP_ENV", "development")
	baseURL := strings.TrimRight(GetEnv("SHORTENER_BASE_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		App: AppConfig{
			Name:     GetEnv("APP_NAME", "short-url"),
			Version:  GetEnv("APP_VERSION", "0.1.0"),
			Env:      env,
			LogLevel: GetEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: GetEnv("APP_PORT", "8080"),
			Host: GetEnv("APP_HOST", "localhost"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(GetEnv("STORAGE_BACKEND", StorageMongo)),
		},
		MongoDB: MongoDBConfig{
			URI:      GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: GetEnv("MONGODB_DATABASE", "urlshortener"),
		},
		Postgres: PostgresConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "5432"),
			User:     GetEnv("DB_USER", "postgres"),
			Password: GetEnv("DB_PASSWORD", "postgres"),
			Name:     GetEnv("DB_NAME", "urlshortener"),
			SSLMode:  GetEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(GetEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:  GetEnvToggle("REDIS_ENABLED", false),
			Addr:     GetEnv("REDIS_ADDR", "localhost:6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvInt("REDIS_DB", 0),
		},
		Shortener: ShortenerConfig{
			BaseURL:        baseURL,
			RedirectStatus: GetEnvInt("REDIRECT_STATUS", 302),
			ValidSchemes:   SplitCSV(strings.ToLower(GetEnv("VALID_SCHEMES", "http,https"))),
			MaxAttempts:    GetEnvInt("SHORTCODE_MAX_ATTEMPTS", 10),
		},
		OAuth: OAuthConfig{
			ClientID:     GetEnv("OAUTH_CLIENT_ID", ""),
			ClientSecret: GetEnv("OAUTH_CLIENT_SECRET", ""),
			RedirectURL:  GetEnv("OAUTH_REDIRECT_URL", baseURL+"/auth/callback"),
			AuthURL:      GetEnv("OAUTH_AUTH_URL", "https://discord.com/api/oauth2/authorize"),
			TokenURL:     GetEnv("OAUTH_TOKEN_URL", "https://discord.com/api/oauth2/token"),
			ProfileURL:   GetEnv("OAUTH_PROFILE_URL", "https://discord.com/api/users/@me"),
			Scopes:       strings.Fields(GetEnv("OAUTH_SCOPES", "identify email")),
			AllowSignup:  GetEnvToggle("ALLOW_SIGNUP", false),
		},
		Session: SessionConfig{
			Secret: GetEnv("SESSION_SECRET", ""),
			TTL:    GetEnvDuration("SESSION_TTL", 30*24*time.Hour),
			Secure: env == "production",
		},
		Security: SecurityConfig{
			CreateRatePerMinute: GetEnvInt("CREATE_RATE_PER_MINUTE", 30),
			LoginRatePerMinute:  GetEnvInt("LOGIN_RATE_PER_MINUTE", 20),
			AllowedOrigins:      SplitCSV(GetEnv("CORS_ALLOWED_ORIGINS", "")),
		},
		Kafka: KafkaConfig{
			Enabled: GetEnvToggle("KAFKA_ENABLED", false),
			Brokers: SplitCSV(GetEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   GetEnv("KAFKA_CLICK_TOPIC", "clicks.recorded"),
			GroupID: GetEnv("KAFKA_CLICK_GROUP_ID", "click-counter"),

			PublishTimeout:   GetEnvDuration("KAFKA_PUBLISH_TIMEOUT", 2*time.Second),
			FetchMaxWait:     GetEnvDuration("KAFKA_CONSUMER_MAX_WAIT", 500*time.Millisecond),
			OperationTimeout: GetEnvDuration("KAFKA_CONSUMER_OPERATION_TIMEOUT", 5*time.Second),
			ConsumeBackoff:   GetEnvDuration("KAFKA_CONSUMER_BACKOFF", 500*time.Millisecond),
		},
		OTel: OTelConfig{
			Enabled:  GetEnvToggle("OTEL_ENABLED", false),
			Endpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		},
	}
	return cfg
}

// Validate checks cross-field constraints that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if err := c.validateShared(); err != nil {
		return err
	}
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return fmt.Errorf("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required")
	}
	if len(c.Session.Secret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 characters")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	return nil
}

func (c *Config) validateShared() error {
	if c.Shortener.RedirectStatus != 301 && c.Shortener.RedirectStatus != 302 {
		return fmt.Errorf("REDIRECT_STATUS must be 301 or 302 (got %d)", c.Shortener.RedirectStatus)
	}
	if len(c.Shortener.ValidSchemes) == 0 {
		return fmt.Errorf("VALID_SCHEMES must list at least one scheme")
	}
	if c.Shortener.MaxAttempts < 1 {
		return fmt.Errorf("SHORTCODE_MAX_ATTEMPTS must be >= 1 (got %d)", c.Shortener.MaxAttempts)
	}
	if c.Storage.Backend != StorageMongo && c.Storage.Backend != StoragePostgres {
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q (got %q)", StorageMongo, StoragePostgres, c.Storage.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	return nil
}
