package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/bkviswam/tradeplatform/internal/models"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
)

type Config struct {
	Environment     models.Environment
	Feed            string
	Store           Backend
	DatabaseDSN     string
	DBMaxConns      int
	RedisAddr       string
	RedisPassword   string
	PositionTTL     time.Duration
	RefreshInterval time.Duration
	Workers         int
	SeedPath        string
	SeedPositions   bool
	DecisionsPath   string
	CheckpointPath  string
	HealthAddr      string
	LogLevel        string
	LogFormat       string
	APIKey          string
	APISecret       string
	TelegramToken   string
	TelegramChatID  int64
}

func Load() (Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	var env string
	var backend string

	if err := loadDotEnv(".env"); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	fs.StringVar(&env, "env", string(models.EnvironmentPaper), "trading environment: PAPER or LIVE")
	fs.StringVar(&cfg.Feed, "feed", "iex", "market data feed: iex or sip")
	fs.StringVar(&backend, "store", string(BackendMemory), "persistence backend: memory or postgres")
	fs.IntVar(&cfg.DBMaxConns, "db-max-conns", 8, "max postgres connections")
	fs.DurationVar(&cfg.PositionTTL, "position-ttl", 5*time.Minute, "ttl of position snapshots mirrored to redis")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", time.Minute, "position refresh interval")
	fs.IntVar(&cfg.Workers, "workers", 0, "dispatcher workers, 0 means one per CPU")
	fs.StringVar(&cfg.SeedPath, "seed", "", "yaml file with instruments and strategy configs")
	fs.BoolVar(&cfg.SeedPositions, "seed-positions", true, "buy the initial quantity of instruments without an open buy on start")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", "decisions.ndjson", "path to decisions log")
	fs.StringVar(&cfg.CheckpointPath, "checkpoint-path", "checkpoint.json", "path to position checkpoint file")
	fs.StringVar(&cfg.HealthAddr, "health-addr", ":8080", "health endpoint listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", "json", "log format: json or console")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	parsed, err := models.ParseEnvironment(env)
	if err != nil {
		return cfg, err
	}
	cfg.Environment = parsed
	cfg.Store = Backend(backend)
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")
	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("TELEGRAM_CHAT_ID must be an integer: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return godotenv.Load(path)
}

func validate(cfg Config) error {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required")
	}
	switch cfg.Store {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("invalid store: %s", cfg.Store)
	}
	if cfg.Feed != "iex" && cfg.Feed != "sip" {
		return fmt.Errorf("invalid feed: %s", cfg.Feed)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("refresh-interval must be > 0")
	}
	if cfg.PositionTTL <= 0 {
		return fmt.Errorf("position-ttl must be > 0")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	return nil
}
