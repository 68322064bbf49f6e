package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heartbeatfm/heartbeat-server/go/internal/gateway"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Rooms struct {
		AutoCreate bool `yaml:"auto_create"`
	} `yaml:"rooms"`
	Gateway struct {
		MaxMessageSize   int64   `yaml:"max_message_size"`
		SendQueueSize    int     `yaml:"send_queue_size"`
		RateLimitPerConn float64 `yaml:"rate_limit_per_conn"`
		ReadTimeoutSec   int     `yaml:"read_timeout_sec"`
		WriteTimeoutSec  int     `yaml:"write_timeout_sec"`
		PingIntervalSec  int     `yaml:"ping_interval_sec"`
	} `yaml:"gateway"`
	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "4000"
	cfg.Rooms.AutoCreate = true
	cc := gateway.DefaultConnectionConfig()
	cfg.Gateway.MaxMessageSize = cc.MaxMessageSize
	cfg.Gateway.SendQueueSize = cc.SendQueueSize
	cfg.Gateway.RateLimitPerConn = cc.RateLimitPerConn
	cfg.Gateway.ReadTimeoutSec = int(cc.ReadTimeout / time.Second)
	cfg.Gateway.WriteTimeoutSec = int(cc.WriteTimeout / time.Second)
	cfg.Gateway.PingIntervalSec = int(cc.PingInterval / time.Second)
	bc := gateway.DefaultBridgeConfig()
	cfg.NATS.URL = bc.URL
	cfg.NATS.SubjectPrefix = bc.SubjectPrefix
	cfg.Log.Level = "info"
	return cfg
}

// loadConfig builds the config from defaults, an optional yaml file and
// environment variable overrides, in that order.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Rooms.AutoCreate = getEnvAsBool("ROOMS_AUTO_CREATE", cfg.Rooms.AutoCreate)
	cfg.Gateway.RateLimitPerConn = getEnvAsFloat("GATEWAY_RATE_LIMIT", cfg.Gateway.RateLimitPerConn)
	cfg.NATS.Enabled = getEnvAsBool("NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	return cfg, nil
}

func (c *Config) gatewayConfig() gateway.Config {
	gwCfg := gateway.DefaultConfig()
	gwCfg.AutoCreateRooms = c.Rooms.AutoCreate
	gwCfg.ConnectionConfig.MaxMessageSize = c.Gateway.MaxMessageSize
	gwCfg.ConnectionConfig.SendQueueSize = c.Gateway.SendQueueSize
	gwCfg.ConnectionConfig.RateLimitPerConn = c.Gateway.RateLimitPerConn
	gwCfg.ConnectionConfig.ReadTimeout = time.Duration(c.Gateway.ReadTimeoutSec) * time.Second
	gwCfg.ConnectionConfig.WriteTimeout = time.Duration(c.Gateway.WriteTimeoutSec) * time.Second
	gwCfg.ConnectionConfig.PingInterval = time.Duration(c.Gateway.PingIntervalSec) * time.Second
	gwCfg.BridgeConfig.Enabled = c.NATS.Enabled
	gwCfg.BridgeConfig.URL = c.NATS.URL
	gwCfg.BridgeConfig.SubjectPrefix = c.NATS.SubjectPrefix
	return gwCfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
