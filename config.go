package agencycms

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// SiteConfig holds all configuration for an agencycms site.
type SiteConfig struct {
	Name string // Site name (default "Agency")
	URL  string // Canonical URL (default "http://localhost:3000")
	Env  string // "development" or "production"

	Addr         string // Listen address (default ":3000")
	DatabasePath string // Overrides the platform database location when set

	AdminPassword string // Required for serve: admin login password
	SessionSecret string // Required for serve: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	UploadDir       string // Where media files are written (default "public/uploads")
	UploadURLPrefix string // Public URL prefix of UploadDir (default "/uploads")

	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text
	LogFile   string // Optional rotating log file
	SentryDSN string // Optional error reporting

	PostCacheTTL  time.Duration // Published post cache TTL (default 5min)
	ShutdownGrace time.Duration // Graceful shutdown window (default 10s)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Agency"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.UploadDir == "" {
		c.UploadDir = "public/uploads"
	}
	if c.UploadURLPrefix == "" {
		c.UploadURLPrefix = "/uploads"
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = 10 * time.Second
	}
}

// Validate checks the settings the server cannot run without.
func (c SiteConfig) Validate() error {
	if c.AdminPassword == "" {
		return eris.New("agencycms: ADMIN_PASSWORD is required")
	}
	if c.SessionSecret == "" {
		return eris.New("agencycms: SESSION_SECRET is required")
	}
	return nil
}

// LoadConfig reads .env, then an optional config.yaml from dir, then the
// environment. Environment variables win over the file.
func LoadConfig(dir string) (SiteConfig, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return SiteConfig{}, eris.Wrap(err, "loading .env")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("site_name", "Agency")
	v.SetDefault("site_url", "http://localhost:3000")
	v.SetDefault("app_env", "development")
	v.SetDefault("addr", ":3000")
	v.SetDefault("upload_dir", "public/uploads")
	v.SetDefault("upload_url_prefix", "/uploads")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("post_cache_ttl", "5m")
	v.SetDefault("shutdown_grace", "10s")
	for _, key := range []string{"database_path", "admin_password", "session_secret", "cookie_secure", "log_file", "sentry_dsn"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return SiteConfig{}, eris.Wrap(err, "reading config.yaml")
		}
	}

	cfg := SiteConfig{
		Name:            v.GetString("site_name"),
		URL:             v.GetString("site_url"),
		Env:             v.GetString("app_env"),
		Addr:            v.GetString("addr"),
		DatabasePath:    v.GetString("database_path"),
		AdminPassword:   v.GetString("admin_password"),
		SessionSecret:   v.GetString("session_secret"),
		CookieSecure:    v.GetBool("cookie_secure"),
		UploadDir:       v.GetString("upload_dir"),
		UploadURLPrefix: v.GetString("upload_url_prefix"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		LogFile:         v.GetString("log_file"),
		SentryDSN:       v.GetString("sentry_dsn"),
		PostCacheTTL:    v.GetDuration("post_cache_ttl"),
		ShutdownGrace:   v.GetDuration("shutdown_grace"),
	}
	cfg.setDefaults()
	return cfg, nil
}
