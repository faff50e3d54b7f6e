package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevJWTSecret is the signing key used when JWT_SECRET is not set.
// Running production with it is allowed but reported by Warnings().
const DevJWTSecret = "dev-only-admin-secret-change-me"

// Config holds all configuration required by the API process.
// Values come from env (or an optional .env file next to the binary).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cookie    CookieConfig
	Audit     AuditConfig
}

type AppConfig struct {
	Env  string
	Port int

	// Debug exposes internal error detail in API responses. Never enable in production.
	Debug bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnectAttempts is how many startup pings run before giving up.
	ConnectAttempts int
}

// RedisConfig is optional. An empty Host keeps login lockouts process-local.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	MaxEntries      int
}

type CookieConfig struct {
	Secure bool
	Domain string
}

type AuditConfig struct {
	BufferSize   int
	KafkaBrokers []string
	KafkaTopic   string
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("APP_DEBUG", false)
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("JWT_ACCESS_TTL", "4h")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_LOCKOUT", "15m")
	v.SetDefault("LOGIN_TRACKER_MAX_ENTRIES", 10000)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("AUDIT_BUFFER", 256)
	v.SetDefault("AUDIT_KAFKA_TOPIC", "admin-audit")

	var parseErrs []error
	c := Config{}

	c.App.Env = strings.TrimSpace(v.GetString("APP_ENV"))
	c.App.Port = v.GetInt("APP_PORT")
	c.App.Debug = v.GetBool("APP_DEBUG")

	c.DB.Host = strings.TrimSpace(v.GetString("DB_HOST"))
	c.DB.Port = v.GetInt("DB_PORT")
	c.DB.User = strings.TrimSpace(v.GetString("DB_USER"))
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(v.GetString("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(v.GetString("DB_SSLMODE"))
	c.DB.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	c.DB.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	c.DB.ConnMaxLifetime, parseErrs = parseDuration(v, "DB_CONN_MAX_LIFETIME", parseErrs)
	c.DB.ConnectAttempts = v.GetInt("DB_CONNECT_ATTEMPTS")

	c.Redis.Host = strings.TrimSpace(v.GetString("REDIS_HOST"))
	c.Redis.Port = v.GetInt("REDIS_PORT")
	c.Redis.Password = v.GetString("REDIS_PASSWORD")
	c.Redis.DB = v.GetInt("REDIS_DB")

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(v.GetString("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(v.GetString("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = parseDuration(v, "JWT_ACCESS_TTL", parseErrs)
	c.Auth.RefreshTokenTTL, parseErrs = parseDuration(v, "JWT_REFRESH_TTL", parseErrs)

	c.RateLimit.MaxAttempts = v.GetInt("LOGIN_MAX_ATTEMPTS")
	c.RateLimit.LockoutDuration, parseErrs = parseDuration(v, "LOGIN_LOCKOUT", parseErrs)
	c.RateLimit.MaxEntries = v.GetInt("LOGIN_TRACKER_MAX_ENTRIES")

	c.Cookie.Secure = v.GetBool("COOKIE_SECURE")
	c.Cookie.Domain = strings.TrimSpace(v.GetString("COOKIE_DOMAIN"))

	c.Audit.BufferSize = v.GetInt("AUDIT_BUFFER")
	c.Audit.KafkaBrokers = splitList(v.GetString("AUDIT_KAFKA_BROKERS"))
	c.Audit.KafkaTopic = strings.TrimSpace(v.GetString("AUDIT_KAFKA_TOPIC"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills safe defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.IsProduction() && c.App.Debug {
		errs = append(errs, errors.New("APP_DEBUG must not be enabled in production"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.MaxOpenConns < 0 || c.DB.MaxIdleConns < 0 || c.DB.ConnectAttempts < 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS and DB_CONNECT_ATTEMPTS must be >= 0"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = DevJWTSecret
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 4 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.RateLimit.MaxAttempts <= 0 {
		c.RateLimit.MaxAttempts = 5
	}
	if c.RateLimit.LockoutDuration <= 0 {
		c.RateLimit.LockoutDuration = 15 * time.Minute
	}
	if c.RateLimit.MaxEntries <= 0 {
		c.RateLimit.MaxEntries = 10000
	}

	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 256
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.KafkaTopic == "" {
		errs = append(errs, errors.New("AUDIT_KAFKA_TOPIC is required when AUDIT_KAFKA_BROKERS is set"))
	}

	return joinErrors(errs)
}

// Warnings reports hazardous but permitted settings. The process logs them at startup.
func (c Config) Warnings() []string {
	var out []string
	if c.IsProduction() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == DevJWTSecret) {
		out = append(out, "JWT_SECRET is the development default in production; tokens can be forged by anyone who knows it")
	}
	if c.IsProduction() && !c.Cookie.Secure {
		out = append(out, "COOKIE_SECURE is disabled in production; session cookies may travel over plain HTTP")
	}
	if c.Redis.Host == "" {
		out = append(out, "REDIS_HOST not set; login lockouts are process-local and reset on restart")
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// ExposeErrorDetail reports whether API errors may carry internal detail.
func (c Config) ExposeErrorDetail() bool {
	if c.IsProduction() {
		return false
	}
	return c.App.Debug || c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func parseDuration(v *viper.Viper, key string, errs []error) (time.Duration, []error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, raw))
	}
	return d, errs
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
