package extractor

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// NewExtractor builds the production extractor: the OpenAI-backed
// implementation wrapped with the LRU cache.
func NewExtractor(cfg *Config, logger *zap.SugaredLogger) (Extractor, error) {
	inner, err := NewOpenAIExtractor(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewCached(inner, cfg.CacheSize, logger)
}

// cached memoizes extraction results by a hash of the text and patient context.
// The fast and thorough passes frequently see identical text for the same
// encounter, and re-running delta processing after a partial failure should not
// trigger a second model call.
type cached struct {
	delegate Extractor
	cache    *lru.Cache
	logger   *zap.SugaredLogger
}

func NewCached(delegate Extractor, size int, logger *zap.SugaredLogger) (Extractor, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &cached{
		delegate: delegate,
		cache:    cache,
		logger:   logger,
	}, nil
}

func (c *cached) Extract(ctx context.Context, text string, pc PatientContext) (*Result, error) {
	key := cacheKey(text, pc)
	if v, ok := c.cache.Get(key); ok {
		c.logger.Debugw("extraction cache hit", "key", key)
		return v.(*Result), nil
	}

	result, err := c.delegate.Extract(ctx, text, pc)
	if err != nil {
		return nil, err
	}
	// Degraded (warning-only) results are not cached so a transient failure
	// does not pin an empty extraction for the lifetime of the entry.
	if len(result.Warnings) == 0 {
		c.cache.Add(key, result)
	}
	return result, nil
}

func cacheKey(text string, pc PatientContext) string {
	d := xxhash.New()
	_, _ = d.WriteString(text)
	_, _ = d.WriteString(fmt.Sprintf("|%d|%s", pc.Age, pc.Sex))
	for _, p := range pc.ActiveProblems {
		_, _ = d.WriteString("|" + p.Title + "|" + p.Icd10Code)
	}
	return fmt.Sprintf("%x", d.Sum64())
}
