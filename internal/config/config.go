package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded from config.yaml with
// environment-variable overrides.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Mongo struct {
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`
	Scheduler struct {
		Enabled       bool   `mapstructure:"enabled"`
		FullPassSpec  string `mapstructure:"full_pass_spec"`
		MeterPassSpec string `mapstructure:"meter_pass_spec"`
		LookaheadDays int    `mapstructure:"lookahead_days"`
	} `mapstructure:"scheduler"`
	MQTT struct {
		Broker        string `mapstructure:"broker"`
		ClientID      string `mapstructure:"client_id"`
		ReadingsTopic string `mapstructure:"readings_topic"`
	} `mapstructure:"mqtt"`
	WorkOrder struct {
		BaseURL string `mapstructure:"base_url"`
		Token   string `mapstructure:"token"`
	} `mapstructure:"work_order"`
}

// Load reads configuration from config.yaml in the given path, falling back
// to defaults, with environment variables taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix("PM")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("mongo.database", "pm_engine")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.full_pass_spec", "@daily")
	v.SetDefault("scheduler.meter_pass_spec", "0 */4 * * *")
	v.SetDefault("scheduler.lookahead_days", 30)
	v.SetDefault("mqtt.client_id", "pm-engine")
	v.SetDefault("mqtt.readings_topic", "meters/+/readings")
}
