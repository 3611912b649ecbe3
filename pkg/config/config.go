package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Timeplus TimeplusConfig `mapstructure:"timeplus"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	AllowedOrigins  string `mapstructure:"allowedOrigins"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
}

// TimeplusConfig holds the telemetry store connection configuration
type TimeplusConfig struct {
	Address      string `mapstructure:"address"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Workspace    string `mapstructure:"workspace"`
	QueryTimeout int    `mapstructure:"queryTimeout"` // seconds, per metric query
}

// NotifyConfig selects and configures the notification sink
type NotifyConfig struct {
	Sink         string   `mapstructure:"sink"` // log | webhook | kafka
	WebhookURL   string   `mapstructure:"webhookUrl"`
	KafkaBrokers []string `mapstructure:"kafkaBrokers"`
	KafkaTopic   string   `mapstructure:"kafkaTopic"`
}

// LoadConfig loads the application configuration from file or environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowedOrigins", "*")
	viper.SetDefault("server.shutdownTimeout", 10)
	viper.SetDefault("timeplus.queryTimeout", 15)
	viper.SetDefault("notify.sink", "log")
	viper.SetDefault("notify.kafkaTopic", "alert_notification")

	// Allow environment variables to override config file
	viper.SetEnvPrefix("PULSE_ALERT")
	viper.AutomaticEnv()

	// If config file is provided, read it
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			logrus.Warnf("Error reading config file: %v", err)
		}
	}

	// Unmarshal config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
