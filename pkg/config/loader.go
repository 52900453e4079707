package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// legacyEnv maps config keys to the environment variables older deployments
// already set. The prefixed names still win when both are present.
var legacyEnv = map[string]string{
	"server.port":           "WS_PORT",
	"server.auth.jwtSecret": "JWT_SECRET",
	"backbone.redis.host":   "REDIS_HOST",
	"backbone.redis.port":   "REDIS_PORT",
}

const envPrefix = "GOPRESENCE"

// Load reads configuration from a file and environment variables. fileName is
// either a bare name looked up in the working directory or a path with an
// extension.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.auth.jwtSecret", "")
	v.SetDefault("server.connectionLimit.maxPerUser", 0)
	v.SetDefault("server.connectionLimit.mode", "reject")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("transport.pingInterval", "25s")
	v.SetDefault("transport.writeTimeout", "10s")
	v.SetDefault("transport.readLimit", 64*1024)
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("backbone.driver", "redis")
	v.SetDefault("backbone.prefix", "presence:")
	v.SetDefault("backbone.nodeTTL", "30s")
	v.SetDefault("backbone.sweepTimeout", "5s")
	v.SetDefault("backbone.redis.host", "localhost")
	v.SetDefault("backbone.redis.port", 6379)
	v.SetDefault("backbone.redis.password", "")
	v.SetDefault("backbone.redis.db", 0)
	v.SetDefault("jobs.queue", "code-execution")
	v.SetDefault("jobs.concurrency", 1)
	v.SetDefault("jobs.simulatedDelay", "2s")
	v.SetDefault("jobs.embeddedWorker", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// 2. Set config file details
	if filepath.Ext(fileName) != "" {
		v.SetConfigFile(fileName)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".") // look for config in the working directory
	}

	// 3. Set up environment variable handling
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, err
		}
	}

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars", slog.String("file", fileName))
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Server.Auth.JWTSecret == "" {
		logger.Warn("No JWT secret configured; every connection attempt will be refused")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ConnectionLimit.MaxPerUser > 0 {
		switch c.Server.ConnectionLimit.Mode {
		case "reject", "cycle":
		default:
			errs = append(errs, fmt.Errorf("server.connectionLimit.mode must be 'reject' or 'cycle', got '%s'", c.Server.ConnectionLimit.Mode))
		}
	}
	switch c.Backbone.Driver {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("backbone.driver must be 'redis' or 'memory', got '%s'", c.Backbone.Driver))
	}
	if c.Jobs.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("jobs.concurrency must be at least 1, got %d", c.Jobs.Concurrency))
	}
	if c.Jobs.Queue == "" {
		errs = append(errs, errors.New("jobs.queue must not be empty"))
	}
	return errors.Join(errs...)
}
