package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Cache is what the decorator needs from the cache store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedGenerator memoizes an inner Generator. Keys bind the
// operation, the model, and the exact input text, so a model change
// naturally invalidates old entries. Generator errors are returned
// as-is and never cached.
type CachedGenerator struct {
	inner  Generator
	cache  Cache
	model  string
	logger *zap.Logger
}

// NewCachedGenerator wraps inner with cache.
func NewCachedGenerator(inner Generator, cache Cache, model string, logger *zap.Logger) *CachedGenerator {
	return &CachedGenerator{inner: inner, cache: cache, model: model, logger: logger}
}

// Summarize implements Generator.
func (g *CachedGenerator) Summarize(ctx context.Context, text string) (string, error) {
	key := cacheKey("summarize", g.model, text)
	if v, ok := g.cache.Get(ctx, key); ok {
		g.logger.Debug("llm cache hit", zap.String("op", "summarize"))
		return string(v), nil
	}

	out, err := g.inner.Summarize(ctx, text)
	if err != nil {
		return "", err
	}
	if err := g.cache.Set(ctx, key, []byte(out)); err != nil {
		g.logger.Warn("llm cache write failed", zap.Error(err))
	}
	return out, nil
}

// SuggestTags implements Generator.
func (g *CachedGenerator) SuggestTags(ctx context.Context, text string) ([]string, error) {
	key := cacheKey("suggest-tags", g.model, text)
	if v, ok := g.cache.Get(ctx, key); ok {
		var tags []string
		if err := json.Unmarshal(v, &tags); err == nil {
			g.logger.Debug("llm cache hit", zap.String("op", "suggest-tags"))
			return tags, nil
		}
		g.logger.Warn("llm cache entry corrupt, regenerating", zap.String("key", key))
	}

	tags, err := g.inner.SuggestTags(ctx, text)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return tags, nil
	}
	if err := g.cache.Set(ctx, key, encoded); err != nil {
		g.logger.Warn("llm cache write failed", zap.Error(err))
	}
	return tags, nil
}

func cacheKey(op, model, text string) string {
	sum := sha256.Sum256([]byte(op + "\x00" + model + "\x00" + text))
	return fmt.Sprintf("%s:%s", op, hex.EncodeToString(sum[:]))
}
