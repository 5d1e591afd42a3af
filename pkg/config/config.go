package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Auth      AuthConfig      `mapstructure:"auth"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type ServerConfig struct {
	IngestPort  int `mapstructure:"ingest_port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EngineConfig carries the session engine timings. Zero values fall back to
// the engine's own defaults.
type EngineConfig struct {
	SilenceWindow    time.Duration `mapstructure:"silence_window"`
	CoalesceWindow   time.Duration `mapstructure:"coalesce_window"`
	IdleRetention    time.Duration `mapstructure:"idle_retention"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	DetectorTimeout  time.Duration `mapstructure:"detector_timeout"`
	MinNudgeInterval time.Duration `mapstructure:"min_nudge_interval"`
}

// DetectorConfig is passed through to the detector as an opaque settings map
// so detector knobs can be added without touching this package.
type DetectorConfig struct {
	Settings map[string]interface{} `mapstructure:"settings"`
}

type SinkConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	AuthKey             string        `mapstructure:"auth_key"`
	Timeout             time.Duration `mapstructure:"timeout"`
	BreakerMaxFailures  uint32        `mapstructure:"breaker_max_failures"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
}

type AuthConfig struct {
	DeviceKey string `mapstructure:"device_key"`
}

type WebSocketConfig struct {
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	MaxConnections int           `mapstructure:"max_connections"`
}

var globalConfig Config

func Load(configPath string) error {
	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return fmt.Errorf("could not load main config file: %w", err)
	}

	setDefaultValues()

	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file %s.yaml not found, using only environment variables", fileName)
		}
		return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
	}

	if err := viper.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

func setDefaultValues() {
	if globalConfig.Server.IngestPort == 0 {
		globalConfig.Server.IngestPort = 8080
	}
	if globalConfig.Server.MetricsPort == 0 {
		globalConfig.Server.MetricsPort = 9090
	}
	if globalConfig.Engine.MinNudgeInterval == 0 {
		globalConfig.Engine.MinNudgeInterval = 5 * time.Minute
	}
	if globalConfig.Sink.Timeout == 0 {
		globalConfig.Sink.Timeout = 5 * time.Second
	}
	if globalConfig.Sink.BreakerMaxFailures == 0 {
		globalConfig.Sink.BreakerMaxFailures = 5
	}
	if globalConfig.Sink.BreakerResetTimeout == 0 {
		globalConfig.Sink.BreakerResetTimeout = 30 * time.Second
	}
	if globalConfig.WebSocket.PongWait == 0 {
		globalConfig.WebSocket.PongWait = 45 * time.Second
	}
	if globalConfig.WebSocket.PingPeriod == 0 {
		globalConfig.WebSocket.PingPeriod = 30 * time.Second
	}
	if globalConfig.WebSocket.MaxConnections == 0 {
		globalConfig.WebSocket.MaxConnections = 256
	}
}

func GetConfig() *Config {
	return &globalConfig
}
