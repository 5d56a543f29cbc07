package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sweep    SweepConfig
	SMTP     SMTPConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SweepConfig struct {
	Interval       time.Duration
	BatchSize      int
	Workers        int
	MessageTimeout time.Duration
	StaleClaim     time.Duration
	Timezone       *time.Location
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	LinkTTL   time.Duration
}

func LoadAll() (*Config, error) {
	var errs []error

	collect := func(val string, err error) string {
		if err != nil {
			errs = append(errs, err)
		}
		return val
	}
	collectInt := func(val int, err error) int {
		if err != nil {
			errs = append(errs, err)
		}
		return val
	}
	collectBool := func(val bool, err error) bool {
		if err != nil {
			errs = append(errs, err)
		}
		return val
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: collect(requireEnv("POSTGRES_URL")),
		},
		SMTP: SMTPConfig{
			Host:     collect(requireEnv("SMTP_HOST")),
			Port:     collectInt(getEnvInt("SMTP_PORT", 587)),
			From:     collect(requireEnv("SMTP_FROM")),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: collect(requireEnv("SMTP_APP_PASSWORD")),
		},
		Storage: StorageConfig{
			Endpoint:  collect(requireEnv("S3_ENDPOINT")),
			AccessKey: collect(requireEnv("S3_ACCESS_KEY")),
			SecretKey: collect(requireEnv("S3_SECRET_KEY")),
			Bucket:    getEnv("S3_BUCKET", "message-media"),
			UseSSL:    collectBool(getEnvBool("S3_USE_SSL", false)),
			LinkTTL:   time.Duration(collectInt(getEnvInt("LINK_TTL_HOURS", 168))) * time.Hour,
		},
		Sweep: SweepConfig{
			Interval:       time.Duration(collectInt(getEnvInt("SWEEP_INTERVAL_SECONDS", 3600))) * time.Second,
			BatchSize:      collectInt(getEnvInt("SWEEP_BATCH_SIZE", 100)),
			Workers:        collectInt(getEnvInt("SWEEP_WORKERS", 4)),
			MessageTimeout: time.Duration(collectInt(getEnvInt("SWEEP_MESSAGE_TIMEOUT_SECONDS", 30))) * time.Second,
			StaleClaim:     time.Duration(collectInt(getEnvInt("SWEEP_STALE_CLAIM_SECONDS", 3600))) * time.Second,
		},
	}

	tzName := getEnv("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE: %s", tzName))
	}
	cfg.Sweep.Timezone = loc

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Redis = redisCfg

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttlSeconds, err := getEnvInt("REDIS_TTL_SECONDS", 604800)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Sweep.BatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be > 0"))
	}
	if cfg.Sweep.Workers <= 0 {
		errs = append(errs, errors.New("SWEEP_WORKERS must be > 0"))
	}
	if cfg.Sweep.MessageTimeout <= 0 {
		errs = append(errs, errors.New("SWEEP_MESSAGE_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Sweep.StaleClaim <= 0 {
		errs = append(errs, errors.New("SWEEP_STALE_CLAIM_SECONDS must be > 0"))
	}
	if cfg.SMTP.Port <= 0 {
		errs = append(errs, errors.New("SMTP_PORT must be > 0"))
	}
	if cfg.Storage.LinkTTL <= 0 {
		errs = append(errs, errors.New("LINK_TTL_HOURS must be > 0"))
	}

	return joinErrors(errs)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for env %s: %s", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
