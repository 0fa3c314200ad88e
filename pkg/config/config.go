package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of the environment variables read by LoadConfig
	EnvPrefix = "TABLETOP"
	// ConfigName is the name of the optional config file, without extension
	ConfigName = "tabletop"
)

// Keys
const (
	KeyLogLevel     = "log_level"
	KeyPeerID       = "peer_id"
	KeyListenAddr   = "listen_addr"
	KeyAPIAddr      = "api_addr"
	KeyDatabaseURL  = "database_url"
	KeySceneID      = "scene_id"
	KeyTickInterval = "tick_interval"
	KeySaveInterval = "save_interval"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	// PeerID identifies the local participant. A random id is used when empty.
	PeerID string `mapstructure:"peer_id"`
	// ListenAddr is where the host accepts websocket connections
	ListenAddr string `mapstructure:"listen_addr"`
	// APIAddr is where the local HTTP API listens
	APIAddr string `mapstructure:"api_addr"`
	// DatabaseURL selects the scene repository of the host
	DatabaseURL string `mapstructure:"database_url"`
	SceneID     string `mapstructure:"scene_id"`
	// TickInterval is how often inbound envelopes are applied
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// SaveInterval is how often the host saves its scene, zero saves on shutdown only
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

// SetDefaults registers the default of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyPeerID, "")
	v.SetDefault(KeyListenAddr, ":8888")
	v.SetDefault(KeyAPIAddr, ":8080")
	v.SetDefault(KeyDatabaseURL, "sqlite://tabletop.db")
	v.SetDefault(KeySceneID, "default")
	v.SetDefault(KeyTickInterval, 20*time.Millisecond)
	v.SetDefault(KeySaveInterval, 30*time.Second)
}

// LoadConfig reads the optional tabletop.yaml in path, then TABLETOP_*
// environment variables and any flags already bound to v.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %v", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}
	if config.PeerID == "" {
		config.PeerID = uuid.NewString()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.SaveInterval < 0 {
		return fmt.Errorf("save_interval must not be negative, got %s", c.SaveInterval)
	}
	if c.SceneID == "" {
		return fmt.Errorf("scene_id must be set")
	}
	return nil
}
