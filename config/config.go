// Package config loads runtime settings from the environment.
//
// An optional .env file in the working directory is read first; variables
// already set in the environment win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	DBPath   string
	LogLevel string
	Env      string

	// PolicyFile is a JSON escalation policy. Empty uses the default.
	PolicyFile string

	OwnerPhone    string
	ManagerPhone  string
	DefaultRegion string

	// RedisAddress enables the distributed run lock when set.
	RedisAddress string
	LockTTL      time.Duration

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	// RunHour is the UTC hour after which the daily collection runs.
	RunHour int
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:          8080,
		DBPath:        "rent.db",
		LogLevel:      "info",
		Env:           "development",
		DefaultRegion: "US",
		LockTTL:       5 * time.Minute,

		SchedulerEnabled:  true,
		SchedulerInterval: time.Hour,
		RunHour:           9,
	}

	var err error
	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	cfg.DBPath = envString("DB_PATH", cfg.DBPath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Env = envString("APP_ENV", cfg.Env)
	cfg.PolicyFile = envString("POLICY_FILE", "")
	cfg.OwnerPhone = envPhone("OWNER_PHONE")
	cfg.ManagerPhone = envPhone("MANAGER_PHONE")
	cfg.DefaultRegion = envString("DEFAULT_REGION", cfg.DefaultRegion)
	cfg.RedisAddress = envString("REDIS_ADDRESS", "")
	if cfg.LockTTL, err = envDuration("LOCK_TTL", cfg.LockTTL); err != nil {
		return Config{}, err
	}
	if cfg.SchedulerEnabled, err = envBool("SCHEDULER_ENABLED", cfg.SchedulerEnabled); err != nil {
		return Config{}, err
	}
	if cfg.SchedulerInterval, err = envDuration("SCHEDULER_INTERVAL", cfg.SchedulerInterval); err != nil {
		return Config{}, err
	}
	if cfg.RunHour, err = envInt("RUN_HOUR", cfg.RunHour); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.RunHour < 0 || c.RunHour > 23 {
		return fmt.Errorf("RUN_HOUR %d out of range 0-23", c.RunHour)
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment reports whether console logging should be used.
func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// envPhone treats the "placeholder" value of sample .env files as unset.
func envPhone(key string) string {
	v := envString(key, "")
	if v == "placeholder" {
		return ""
	}
	return v
}

func envInt(key string, def int) (int, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
