package config

import (
	"net"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Backbone  BackboneConfig  `mapstructure:"backbone"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string                `mapstructure:"host"`
	Port            int                   `mapstructure:"port"`
	Auth            AuthConfig            `mapstructure:"auth"`
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
	AllowedOrigins  []string              `mapstructure:"allowedOrigins"`
	ShutdownTimeout time.Duration         `mapstructure:"shutdownTimeout"`
}

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type AuthConfig struct {
	// No default: an empty secret is reported to clients as a server error.
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	PingInterval time.Duration `mapstructure:"pingInterval"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	ReadLimit    int64         `mapstructure:"readLimit"`
	SendBuffer   int           `mapstructure:"sendBuffer"`
}

type BackboneConfig struct {
	Driver       string        `mapstructure:"driver"` // "redis" or "memory"
	Prefix       string        `mapstructure:"prefix"`
	NodeTTL      time.Duration `mapstructure:"nodeTTL"`
	SweepTimeout time.Duration `mapstructure:"sweepTimeout"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type JobsConfig struct {
	Queue          string        `mapstructure:"queue"`
	Concurrency    int           `mapstructure:"concurrency"`
	SimulatedDelay time.Duration `mapstructure:"simulatedDelay"`
	// EmbeddedWorker runs the job worker inside the websocket server process.
	EmbeddedWorker bool `mapstructure:"embeddedWorker"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
