package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Halo          HaloConfig          `mapstructure:"halo"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type HaloConfig struct {
	Host             string        `mapstructure:"host"`
	Reconnect        bool          `mapstructure:"reconnect"`
	SendInitial      bool          `mapstructure:"send_initial_configuration"`
	WheelDebounce    time.Duration `mapstructure:"wheel_debounce"`
	SnapshotInterval string        `mapstructure:"snapshot_interval"`
	ProbeInterval    string        `mapstructure:"probe_interval"`
}

type HomeAssistantConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type MQTTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Broker    string `mapstructure:"broker"`
	ClientID  string `mapstructure:"client_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseTopic string `mapstructure:"base_topic"`
	Discovery bool   `mapstructure:"discovery"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	viper.BindEnv("halo.host", "HALO_HOST")
	viper.BindEnv("home_assistant.url", "HOME_ASSISTANT_URL")
	viper.BindEnv("home_assistant.token", "HOME_ASSISTANT_TOKEN")
	viper.BindEnv("mqtt.broker", "MQTT_BROKER")
	viper.BindEnv("mqtt.username", "MQTT_USERNAME")
	viper.BindEnv("mqtt.password", "MQTT_PASSWORD")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, env and defaults carry it.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3100)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.path", "./data/halo-bridge.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 10)

	viper.SetDefault("halo.reconnect", true)
	viper.SetDefault("halo.send_initial_configuration", true)
	viper.SetDefault("halo.wheel_debounce", "1s")
	viper.SetDefault("halo.snapshot_interval", "@every 5m")
	viper.SetDefault("halo.probe_interval", "@every 1m")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.client_id", "halo-bridge")
	viper.SetDefault("mqtt.base_topic", "halo-bridge")
	viper.SetDefault("mqtt.discovery", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Validate checks the settings the bridge cannot run without.
func (c *Config) Validate() error {
	if c.Halo.Host == "" {
		return fmt.Errorf("halo.host is required")
	}
	if c.HomeAssistant.URL == "" {
		return fmt.Errorf("home_assistant.url is required")
	}
	if c.HomeAssistant.Token == "" {
		return fmt.Errorf("home_assistant.token is required")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
