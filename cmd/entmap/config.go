package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/entmap/entmap/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config entmap.yaml, every key may be overridden by an ENTMAP_ variable, eg: ENTMAP_LOG_LEVEL
type Config struct {
	Driver      string       `mapstructure:"driver"`
	DSN         string       `mapstructure:"dsn"`
	MaxDepth    int          `mapstructure:"max_depth"`
	PrepareStmt bool         `mapstructure:"prepare_stmt"`
	Log         LogConfig    `mapstructure:"log"`
	Naming      NamingConfig `mapstructure:"naming"`
}

// LogConfig logger selection
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format one of text, zap, logrus, zerolog, json
	Format string `mapstructure:"format"`
}

// NamingConfig table naming
type NamingConfig struct {
	TablePrefix  string `mapstructure:"table_prefix"`
	PluralTables bool   `mapstructure:"plural_tables"`
}

// loadConfig reads path, or entmap.yaml in the working directory when path is empty; a missing default file is not an error
func loadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("driver", "memory")
	v.SetDefault("dsn", "")
	v.SetDefault("max_depth", 1)
	v.SetDefault("prepare_stmt", false)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("naming.table_prefix", "")
	v.SetDefault("naming.plural_tables", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("entmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("entmap")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Driver != "memory" && config.DSN == "" {
		return nil, fmt.Errorf("driver %s needs a dsn", config.Driver)
	}
	return &config, nil
}

func (c *Config) logger() (logger.Interface, error) {
	config := logger.Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      logger.ParseLevel(strings.ToLower(c.Log.Level)),
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		config.Colorful = true
		return logger.New(log.New(os.Stderr, "\r\n", log.LstdFlags), config), nil
	case "zap":
		return logger.NewZapLoggerWithConfig(config), nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(os.Stderr)
		return logger.NewLogrusLogger(l, config), nil
	case "zerolog":
		return logger.NewZerologConsoleLogger(config), nil
	case "json":
		return logger.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)), config), nil
	}
	return nil, fmt.Errorf("unknown log format %q", c.Log.Format)
}
