// Package config loads chatrelay configuration from environment variables
// and an optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all service configuration. Values are read by viper from a
// chatrelay.yaml file or CHATRELAY_* environment variables; the AWS region
// additionally falls back to the standard AWS_REGION variable.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`

	AWSRegion       string  `mapstructure:"aws_region"`
	ModelID         string  `mapstructure:"model_id"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	Temperature     float64 `mapstructure:"temperature"`

	DocumentAPIBaseURL string `mapstructure:"document_api_base_url"`
	DocumentAPIToken   string `mapstructure:"document_api_token"`

	// UsageDBPath enables the sqlite usage recorder when set.
	UsageDBPath string `mapstructure:"usage_db_path"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig guards the chat endpoint.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// Load reads configuration, applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("model_id", "")
	v.SetDefault("max_output_tokens", 4096)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("document_api_base_url", "")
	v.SetDefault("document_api_token", "")
	v.SetDefault("usage_db_path", "")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 60)

	v.SetConfigName("chatrelay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/chatrelay")

	v.SetEnvPrefix("CHATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("aws_region", "CHATRELAY_AWS_REGION", "AWS_REGION")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
