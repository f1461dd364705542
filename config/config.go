package config

import "github.com/kelseyhightower/envconfig"

type Config struct {
	HttpPort uint16 `envconfig:"CHARTLINE_HTTP_SERVER_PORT" default:"8080" required:"true"`

	// Mentions below this confidence are discarded without touching any record.
	MentionConfidenceThreshold float64 `envconfig:"CHARTLINE_MENTION_CONFIDENCE_THRESHOLD" default:"0.6"`
	// Minimum normalized title similarity for a mention to match an existing problem.
	TitleSimilarityThreshold float64 `envconfig:"CHARTLINE_TITLE_SIMILARITY_THRESHOLD" default:"0.72"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
