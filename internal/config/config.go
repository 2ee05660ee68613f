// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	Env         string `envconfig:"ENV" default:"production"`

	StoryID      string `envconfig:"STORY_ID" default:"default"`
	StartSceneID string `envconfig:"START_SCENE_ID" default:"scene1"`
	StoryPath    string `envconfig:"STORY_PATH" default:"stories/passages.json"`
	StoryStrict  bool   `envconfig:"STORY_STRICT" default:"false"`
	StatsPath    string `envconfig:"STATS_PATH"`
	AssetsDir    string `envconfig:"ASSETS_DIR" default:"assets"`

	// Empty DatabaseURL selects in-memory storage.
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	DBMaxConns      int32         `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBConnectRetry  int           `envconfig:"DB_CONNECT_RETRIES" default:"10"`
	DBRetryInterval time.Duration `envconfig:"DB_RETRY_INTERVAL" default:"2s"`

	// Empty RedisAddr selects in-memory locks and receipts.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	ReceiptTTL     time.Duration `envconfig:"RECEIPT_TTL" default:"10m"`
	LockTTL        time.Duration `envconfig:"LOCK_TTL" default:"15s"`
	InitialBalance int           `envconfig:"INITIAL_BALANCE" default:"10"`
	DailyBonus     int           `envconfig:"DAILY_BONUS" default:"5"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.StoryID) == "" {
		return fmt.Errorf("STORY_ID must not be empty")
	}
	if strings.TrimSpace(c.StartSceneID) == "" {
		return fmt.Errorf("START_SCENE_ID must not be empty")
	}
	if c.InitialBalance < 0 {
		return fmt.Errorf("INITIAL_BALANCE must be >= 0, got %d", c.InitialBalance)
	}
	if c.DailyBonus < 0 {
		return fmt.Errorf("DAILY_BONUS must be >= 0, got %d", c.DailyBonus)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
