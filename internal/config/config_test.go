package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Storage:   StorageConfig{Backend: StorageMongo},
		Shortener: ShortenerConfig{RedirectStatus: 302, ValidSchemes: []string{"http", "https"}, MaxAttempts: 10},
		OAuth:     OAuthConfig{ClientID: "id", ClientSecret: "secret"},
		Session:   SessionConfig{Secret: "0123456789abcdef", TTL: time.Hour},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad redirect status", func(c *Config) { c.Shortener.RedirectStatus = 307 }, "REDIRECT_STATUS"},
		{"no schemes", func(c *Config) { c.Shortener.ValidSchemes = nil }, "VALID_SCHEMES"},
		{"zero attempts", func(c *Config) { c.Shortener.MaxAttempts = 0 }, "SHORTCODE_MAX_ATTEMPTS"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }, "STORAGE_BACKEND"},
		{"postgres backend", func(c *Config) { c.Storage.Backend = StoragePostgres }, ""},
		{"missing client id", func(c *Config) { c.OAuth.ClientID = "" }, "OAUTH_CLIENT_ID"},
		{"short session secret", func(c *Config) { c.Session.Secret = "short" }, "SESSION_SECRET"},
		{"kafka without brokers", func(c *Config) { c.Kafka = KafkaConfig{Enabled: true} }, "KAFKA_BROKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadDerivesRedirectURLFromBaseURL(t *testing.T) {
	t.Setenv("SHORTENER_BASE_URL", "https://sho.rt/")
	t.Setenv("OAUTH_CLIENT_ID", "id")
	t.Setenv("OAUTH_CLIENT_SECRET", "secret")
	t.Setenv("SESSION_SECRET", "0123456789abcdef")
	t.Setenv("VALID_SCHEMES", "HTTP, https ,")
	t.Setenv("ALLOW_SIGNUP", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OAuth.RedirectURL != "https://sho.rt/auth/callback" {
		t.Errorf("got redirect %q", cfg.OAuth.RedirectURL)
	}
	if len(cfg.Shortener.ValidSchemes) != 2 || cfg.Shortener.ValidSchemes[0] != "http" {
		t.Errorf("got schemes %v", cfg.Shortener.ValidSchemes)
	}
	if !cfg.OAuth.AllowSignup {
		t.Error("expected signups enabled")
	}
	if len(cfg.OAuth.Scopes) != 2 {
		t.Errorf("got scopes %v", cfg.OAuth.Scopes)
	}
}

func TestLoadWorkerSkipsWebSettings(t *testing.T) {
	t.Setenv("OAUTH_CLIENT_ID", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWorker()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("got brokers %v", cfg.Kafka.Brokers)
	}

	if _, err := Load(); err == nil {
		t.Error("expected the web configuration to require OAuth credentials")
	}
}

func TestLoadWorkerRequiresKafka(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "false")

	if _, err := LoadWorker(); err == nil {
		t.Error("expected an error when Kafka is disabled")
	}
}
