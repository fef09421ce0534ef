package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultAppName          = "minipay"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultAccessTokenTTL   = time.Hour
	defaultRefreshTokenTTL  = 7 * 24 * time.Hour
	defaultTxMaxRetries     = 3
	defaultReconcileSpec    = "@every 5m"
	defaultCreateRatePerMin = 10
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
)

// Config captures application runtime configuration loaded from the
// environment, optionally seeded by a .env file.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	DBMaxConns     int32
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	APIKey          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	TxMaxRetries            int
	ReconcileSchedule       string
	CreateAccountRatePerMin int
	MigrateOnStart          bool
	CORSAllowOrigins        string
}

// Load reads .env (when present) and the process environment. Outside
// development DATABASE_URL, REDIS_URL, API_KEY and JWT_SECRET are required.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 0)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay.String())
	v.SetDefault(shutdownSecondsEnvVar, "")
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL.String())
	v.SetDefault(idemTTLSecondsEnvVar, "")
	v.SetDefault("API_KEY", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", defaultAccessTokenTTL.String())
	v.SetDefault("REFRESH_TOKEN_TTL", defaultRefreshTokenTTL.String())
	v.SetDefault("TX_MAX_RETRIES", defaultTxMaxRetries)
	v.SetDefault("RECONCILE_SCHEDULE", defaultReconcileSpec)
	v.SetDefault("CREATE_ACCOUNT_RATE_PER_MIN", defaultCreateRatePerMin)
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.AutomaticEnv()

	cfg := Config{
		AppName:                 v.GetString("APP_NAME"),
		AppEnv:                  v.GetString("APP_ENV"),
		Port:                    v.GetString("PORT"),
		LogLevel:                strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		DBMaxConns:              v.GetInt32("DB_MAX_CONNS"),
		RedisURL:                v.GetString("REDIS_URL"),
		APIKey:                  v.GetString("API_KEY"),
		JWTSecret:               v.GetString("JWT_SECRET"),
		TxMaxRetries:            v.GetInt("TX_MAX_RETRIES"),
		ReconcileSchedule:       v.GetString("RECONCILE_SCHEDULE"),
		CreateAccountRatePerMin: v.GetInt("CREATE_ACCOUNT_RATE_PER_MIN"),
		MigrateOnStart:          v.GetBool("MIGRATE_ON_START"),
		CORSAllowOrigins:        v.GetString("CORS_ALLOW_ORIGINS"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationOrSeconds(v, "SHUTDOWN_TIMEOUT", shutdownSecondsEnvVar); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationOrSeconds(v, "IDEMPOTENCY_TTL", idemTTLSecondsEnvVar); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = duration(v, "ACCESS_TOKEN_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = duration(v, "REFRESH_TOKEN_TTL"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBMaxConns < 0 {
		return errors.New("DB_MAX_CONNS must not be negative")
	}
	if c.TxMaxRetries < 0 {
		return errors.New("TX_MAX_RETRIES must not be negative")
	}
	if c.CreateAccountRatePerMin <= 0 {
		return errors.New("CREATE_ACCOUNT_RATE_PER_MIN must be positive")
	}
	if c.IsDevelopment() {
		return nil
	}
	for name, value := range map[string]string{
		"DATABASE_URL": c.DatabaseURL,
		"REDIS_URL":    c.RedisURL,
		"API_KEY":      c.APIKey,
		"JWT_SECRET":   c.JWTSecret,
	} {
		if value == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local environment where
// missing infrastructure falls back to in-process implementations.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// durationOrSeconds prefers the legacy *_SECONDS integer variable when set.
func durationOrSeconds(v *viper.Viper, key, secondsKey string) (time.Duration, error) {
	if raw := v.GetString(secondsKey); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(v, key)
}
