package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rpattn/unidata/internal/db"
	"github.com/rpattn/unidata/internal/ingestion"
	"github.com/rpattn/unidata/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. UNIDATA_DATABASE_HOST.
const EnvPrefix = "UNIDATA"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full application configuration.
type Config struct {
	Database  db.Config        `mapstructure:"database"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Ingestion ingestion.Config `mapstructure:"ingestion"`
	Server    ServerConfig     `mapstructure:"server"`
	Log       logging.Config   `mapstructure:"log"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver     string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
}

// ServerConfig configures the HTTP wrapper.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// Load reads config.yaml from configPath (when present), .env files from the working
// directory and UNIDATA_* environment variables, in increasing order of precedence.
func Load(configPath string) (Config, error) {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of cfg. Database settings are only checked for the
// postgres driver.
func Validate(cfg Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg.Storage); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}
	if cfg.Storage.Driver == DriverPostgres {
		if err := validate.Struct(cfg.Database); err != nil {
			return fmt.Errorf("invalid database config: %w", err)
		}
	}
	if err := validate.Struct(cfg.Ingestion); err != nil {
		return fmt.Errorf("invalid ingestion config: %w", err)
	}
	if err := validate.Struct(cfg.Server); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if err := validate.Struct(cfg.Log); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	return nil
}

// setDefaults registers every key so environment overrides apply even without a file.
func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)

	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("storage.sqlite_path", "unidata.db")

	ingestDefaults := ingestion.DefaultConfig()
	v.SetDefault("ingestion.max_file_size", ingestDefaults.MaxFileSize)
	v.SetDefault("ingestion.batch_size", ingestDefaults.BatchSize)
	v.SetDefault("ingestion.workers", ingestDefaults.Workers)
	v.SetDefault("ingestion.pending_timeout", ingestDefaults.PendingTimeout)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
