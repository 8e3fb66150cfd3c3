package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Postgres  PostgresConfig
	Auth      AuthConfig
	Pipedrive PipedriveConfig
	Webhook   WebhookConfig
	NATS      NATSConfig
	Report    ReportConfig
	Session   SessionConfig
	Queue     QueueConfig
}

type ServerConfig struct {
	Port             string
	AllowedOrigins   []string
	AllowCredentials bool
}

// StoreConfig - Driver is "postgres" or "sqlite"
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type AuthConfig struct {
	JWTSecret      string
	JWTAccessTTL   string
	JWTRefreshTTL  string
	AllowSignup    string
	CookieSecure   string
	CookieSameSite string
	CookieDomain   string
	CookiePath     string
	AdminUsername  string
	AdminPassword  string
	// AdminDisplayName - name stamped on the bootstrap account's completions; empty uses AdminUsername
	AdminDisplayName string
}

// PipedriveConfig - defaults used until settings are saved through the API
type PipedriveConfig struct {
	PipelineID          int64
	StageID             int64
	WebhookURL          string
	DefaultCurrency     string
	DefaultCustomerName string
	DefaultSalesperson  string
	DefaultStageName    string
}

type WebhookConfig struct {
	ExposeErrors bool
}

type NATSConfig struct {
	URL     string
	Subject string
	Timeout time.Duration
}

type ReportConfig struct {
	Timezone string
}

type SessionConfig struct {
	ActiveWindow time.Duration
}

type QueueConfig struct {
	RefreshInterval time.Duration
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:             getenv("PORT", "8080"),
			AllowedOrigins:   splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
			AllowCredentials: getbool("CORS_ALLOW_CREDENTIALS", true),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getenv("STORE_DRIVER", "postgres")),
			SQLitePath: getenv("SQLITE_PATH", "contracts.db"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:        os.Getenv("JWT_SECRET"),
			JWTAccessTTL:     getenv("JWT_ACCESS_TTL", "15m"),
			JWTRefreshTTL:    getenv("JWT_REFRESH_TTL", "168h"),
			AllowSignup:      os.Getenv("ALLOW_SIGNUP"),
			CookieSecure:     os.Getenv("AUTH_COOKIE_SECURE"),
			CookieSameSite:   os.Getenv("AUTH_COOKIE_SAMESITE"),
			CookieDomain:     os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookiePath:       os.Getenv("AUTH_COOKIE_PATH"),
			AdminUsername:    os.Getenv("ADMIN_USERNAME"),
			AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
			AdminDisplayName: os.Getenv("ADMIN_DISPLAY_NAME"),
		},
		Pipedrive: PipedriveConfig{
			PipelineID:          getint("PIPEDRIVE_PIPELINE_ID", 4),
			StageID:             getint("PIPEDRIVE_STAGE_ID", 20),
			WebhookURL:          os.Getenv("PIPEDRIVE_WEBHOOK_URL"),
			DefaultCurrency:     strings.ToUpper(getenv("DEFAULT_CURRENCY", "BRL")),
			DefaultCustomerName: getenv("DEFAULT_CUSTOMER_NAME", "Cliente via Webhook"),
			DefaultSalesperson:  getenv("DEFAULT_SALESPERSON_NAME", "Integração"),
			DefaultStageName:    getenv("DEFAULT_STAGE_NAME", "Elaborar Contrato"),
		},
		Webhook: WebhookConfig{
			ExposeErrors: getbool("WEBHOOK_EXPOSE_ERRORS", false),
		},
		NATS: NATSConfig{
			URL:     os.Getenv("NATS_URL"),
			Subject: getenv("NATS_SUBJECT", "contracts.queue.updated"),
			Timeout: getduration("NATS_TIMEOUT", 10*time.Second),
		},
		Report: ReportConfig{
			Timezone: getenv("REPORT_TIMEZONE", "America/Sao_Paulo"),
		},
		Session: SessionConfig{
			ActiveWindow: getduration("SESSION_ACTIVE_WINDOW", 2*time.Minute),
		},
		Queue: QueueConfig{
			RefreshInterval: getduration("QUEUE_REFRESH_INTERVAL", 60*time.Second),
		},
	}
}

// Location - report timezone, falling back to the process local zone
func (c ReportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getint(key string, fallback int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getbool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getduration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
