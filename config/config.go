package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Database struct {
		Driver        string `yaml:"driver"`
		DSN           string `yaml:"dsn"`
		UserCacheSize int    `yaml:"user_cache_size"`
	} `yaml:"database"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		Issuer    string        `yaml:"issuer"`
	} `yaml:"auth"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	ML struct {
		ArtifactDir string  `yaml:"artifact_dir"`
		DataPath    string  `yaml:"data_path"`
		Seed        int64   `yaml:"seed"`
		TestRatio   float64 `yaml:"test_ratio"`
	} `yaml:"ml"`
	Report struct {
		Title string `yaml:"title"`
	} `yaml:"report"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite3"
	cfg.Database.DSN = "./data/cancersense.db"
	cfg.Database.UserCacheSize = 256
	cfg.Http.Port = 8080
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Auth.TokenTTL = 12 * time.Hour
	cfg.Auth.Issuer = "cancersense"
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 50
	cfg.Log.MaxBackups = 5
	cfg.Log.MaxAgeDays = 28
	cfg.ML.ArtifactDir = "./model"
	cfg.ML.DataPath = "./data/data.csv"
	cfg.ML.Seed = 42
	cfg.ML.TestRatio = 0.2
	cfg.Report.Title = "CancerSense AI - Medical Analysis Report"
	return cfg
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	// .env is optional; system environment wins over it
	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	cfg.Database.Driver = getEnvOrDefault("CANCERSENSE_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnvOrDefault("CANCERSENSE_DB_DSN", cfg.Database.DSN)
	cfg.Auth.JWTSecret = getEnvOrDefault("CANCERSENSE_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Log.Level = getEnvOrDefault("CANCERSENSE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnvOrDefault("CANCERSENSE_LOG_FILE", cfg.Log.File)
	cfg.ML.ArtifactDir = getEnvOrDefault("CANCERSENSE_ARTIFACT_DIR", cfg.ML.ArtifactDir)

	if port := os.Getenv("CANCERSENSE_HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid CANCERSENSE_HTTP_PORT %q: %w", port, err)
		}
		cfg.Http.Port = p
	}
	return nil
}

// Validate checks fields that have no usable default
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.ML.TestRatio <= 0 || c.ML.TestRatio >= 1 {
		return fmt.Errorf("ml.test_ratio must be in (0,1), got %v", c.ML.TestRatio)
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
