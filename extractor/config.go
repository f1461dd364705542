package extractor

import "github.com/kelseyhightower/envconfig"

type Config struct {
	ApiKey         string `envconfig:"CHARTLINE_OPENAI_API_KEY"`
	Model          string `envconfig:"CHARTLINE_OPENAI_MODEL" default:"gpt-4o-mini"`
	MaxAttempts    uint   `envconfig:"CHARTLINE_EXTRACTOR_MAX_ATTEMPTS" default:"3"`
	TimeoutSeconds uint   `envconfig:"CHARTLINE_EXTRACTOR_TIMEOUT_SECONDS" default:"30"`
	CacheSize      int    `envconfig:"CHARTLINE_EXTRACTOR_CACHE_SIZE" default:"256"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
