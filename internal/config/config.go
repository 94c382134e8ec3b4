package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service *svcConfig
	Speech  *speechConfig
	Chat    *chatConfig
	Storage *storageConfig
}

type svcConfig struct {
	Address          string `envconfig:"MINUTERO_ADDRESS" default:":8080"`
	BaseUrl          string `envconfig:"MINUTERO_BASE_URL" default:"http://localhost:8080"`
	LogLevel         string `envconfig:"MINUTERO_LOG_LEVEL" default:"info"`
	ResponseLanguage string `envconfig:"MINUTERO_RESPONSE_LANGUAGE" default:"Spanish"`
}

type speechConfig struct {
	APIKey       string `envconfig:"ASSEMBLYAI_API_KEY" default:""`
	BaseUrl      string `envconfig:"ASSEMBLYAI_BASE_URL" default:""`
	LanguageCode string `envconfig:"MINUTERO_LANGUAGE_CODE" default:"es"`

	// Poll tuning; interval and max wait are in seconds and minutes.
	PollIntervalSeconds int `envconfig:"MINUTERO_POLL_INTERVAL" default:"5"`
	PollMaxRetries      int `envconfig:"MINUTERO_POLL_MAX_RETRIES" default:"3"`
	PollMaxWaitMinutes  int `envconfig:"MINUTERO_POLL_MAX_WAIT" default:"30"`
}

type chatConfig struct {
	Provider    string  `envconfig:"MINUTERO_CHAT_PROVIDER" default:"fireworks"`
	APIKey      string  `envconfig:"FIREWORKS_API_KEY" default:""`
	BaseUrl     string  `envconfig:"MINUTERO_CHAT_BASE_URL" default:""`
	Model       string  `envconfig:"MINUTERO_CHAT_MODEL" default:""`
	Temperature float64 `envconfig:"MINUTERO_CHAT_TEMPERATURE" default:"0"`
	MaxTokens   int     `envconfig:"MINUTERO_CHAT_MAX_TOKENS" default:"32768"`
}

type storageConfig struct {
	Endpoint      string `envconfig:"MINUTERO_S3_ENDPOINT" default:""`
	AccessKey     string `envconfig:"MINUTERO_S3_ACCESS_KEY" default:""`
	SecretKey     string `envconfig:"MINUTERO_S3_SECRET_KEY" default:""`
	Bucket        string `envconfig:"MINUTERO_S3_BUCKET" default:"meeting-audio"`
	UseSSL        bool   `envconfig:"MINUTERO_S3_USE_SSL" default:"false"`
	PublicBaseUrl string `envconfig:"MINUTERO_S3_PUBLIC_BASE_URL" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}
