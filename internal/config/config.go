package config

import (
	"errors"
	"flag"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// DefaultMaxUploadSize — лимит размера загружаемого файла (60 Мо).
const DefaultMaxUploadSize int64 = 62914560

// devSecretKey подставляется только в режиме DEBUG.
const devSecretKey = "dev-secret-key"

type Config struct {
	// Server settings
	RunAddress string `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	SiteURL    string `env:"SITE_URL" envDefault:"https://www.cc-sudavesnois.fr"`
	DataRoot   string `env:"DATA_ROOT" envDefault:"./data"`

	SecretKey    string   `env:"SECRET_KEY"`
	Debug        bool     `env:"DEBUG" envDefault:"false"`
	Testing      bool     `env:"TESTING" envDefault:"false"`
	AllowedHosts []string `env:"ALLOWED_HOSTS" envSeparator:","`

	// Security headers
	SecureSSLRedirect           bool `env:"SECURE_SSL_REDIRECT" envDefault:"false"`
	SecureHSTSSeconds           int  `env:"SECURE_HSTS_SECONDS" envDefault:"31536000"`
	SecureHSTSIncludeSubdomains bool `env:"SECURE_HSTS_INCLUDE_SUBDOMAINS" envDefault:"true"`
	SecureHSTSPreload           bool `env:"SECURE_HSTS_PRELOAD" envDefault:"true"`
	SessionCookieSecure         bool `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
	CSRFCookieSecure            bool `env:"CSRF_COOKIE_SECURE" envDefault:"true"`

	// Токен сборщика метрик; пустой — /metrics только для сотрудников
	MetricsToken string `env:"METRICS_TOKEN"`

	// Email
	EmailBackend      string        `env:"EMAIL_BACKEND" envDefault:"console"`
	EmailHost         string        `env:"EMAIL_HOST" envDefault:"smtp.gmail.com"`
	EmailPort         int           `env:"EMAIL_PORT" envDefault:"587"`
	EmailUseTLS       bool          `env:"EMAIL_USE_TLS" envDefault:"true"`
	EmailHostUser     string        `env:"EMAIL_HOST_USER"`
	EmailHostPassword string        `env:"EMAIL_HOST_PASSWORD"`
	EmailTimeout      time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	DefaultFromEmail  string        `env:"DEFAULT_FROM_EMAIL" envDefault:"CCSA <no-reply@cc-sudavesnois.fr>"`

	ContactPrimaryEmail string `env:"CONTACT_PRIMARY_EMAIL" envDefault:"contact@cc-sudavesnois.fr"`
	PLUiRecipientEmail  string `env:"PLUI_RECIPIENT_EMAIL" envDefault:"j.brechoire@cc-sudavesnois.fr"`

	// Uploads
	MaxUploadSize int64 `env:"DATA_UPLOAD_MAX_MEMORY_SIZE" envDefault:"62914560"`

	// Backups
	BackupSchedule  string `env:"BACKUP_SCHEDULE" envDefault:"0 3 * * 0"`
	BackupRetention int    `env:"BACKUP_RETENTION" envDefault:"4"`

	// Производные пути, вычисляются из DataRoot
	DatabasePath string `env:"-"`
	MediaRoot    string `env:"-"`
	BackupRoot   string `env:"-"`
}

func NewConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	// флаги работают ТОЛЬКО поверх значений из env
	flag.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "адрес запуска HTTP-сервера (host:port)")
	flag.StringVar(&cfg.DataRoot, "data", cfg.DataRoot, "каталог данных (db.sqlite3, media/, backups/)")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "режим отладки")

	flag.Parse()

	cfg.applyDefaults()

	return cfg
}

var hostPortRe = regexp.MustCompile(`^[A-Za-z0-9\.\-]*:\d{1,5}$`)

func (cfg *Config) applyDefaults() {
	// RunAddress: только "host:port", иначе — значение по умолчанию
	if !hostPortRe.MatchString(cfg.RunAddress) {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SecretKey == "" && cfg.Debug {
		cfg.SecretKey = devSecretKey
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if cfg.BackupRetention <= 0 {
		cfg.BackupRetention = 4
	}
	if cfg.EmailTimeout <= 0 {
		cfg.EmailTimeout = 10 * time.Second
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = "./data"
	}

	cfg.DatabasePath = filepath.Join(cfg.DataRoot, "db.sqlite3")
	cfg.MediaRoot = filepath.Join(cfg.DataRoot, "media")
	cfg.BackupRoot = filepath.Join(cfg.DataRoot, "backups")
}

// Validate проверяет обязательные параметры.
func (cfg *Config) Validate() error {
	if cfg.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	switch cfg.EmailBackend {
	case "smtp", "console", "memory":
	default:
		return errors.New("EMAIL_BACKEND must be one of smtp, console, memory")
	}
	return nil
}

// HostAllowed сообщает, разрешён ли заголовок Host.
func (cfg *Config) HostAllowed(host string) bool {
	if h, _, ok := cutPort(host); ok {
		host = h
	}
	if cfg.Debug && (host == "localhost" || host == "127.0.0.1" || host == "[::1]") {
		return true
	}
	for _, allowed := range cfg.AllowedHosts {
		switch {
		case allowed == "*":
			return true
		case allowed == host:
			return true
		case len(allowed) > 1 && allowed[0] == '.':
			// ".example.com" разрешает домен и все поддомены
			if host == allowed[1:] || (len(host) > len(allowed) && host[len(host)-len(allowed):] == allowed) {
				return true
			}
		}
	}
	return false
}

func cutPort(hostport string) (string, string, bool) {
	for i := len(hostport) - 1; i >= 0; i-- {
		switch hostport[i] {
		case ':':
			return hostport[:i], hostport[i+1:], true
		case ']':
			return hostport, "", false
		}
	}
	return hostport, "", false
}
