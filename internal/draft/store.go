// Package draft persists in-progress wizard drafts so a session can be resumed.
package draft

import (
	"context"
	"encoding/json"
	"errors"

	"onboard/internal/domain"
	"onboard/pkg/cache"
	"onboard/pkg/logger"
)

// Store saves, restores and clears the draft of one session.
type Store interface {
	Save(ctx context.Context, key string, d *domain.FormDraft) error
	// Load returns false when there is no usable draft.
	Load(ctx context.Context, key string) (*domain.FormDraft, bool)
	Clear(ctx context.Context, key string) error
}

// RedisStore keeps each draft as a JSON document under <prefix>:<key>.
type RedisStore struct {
	cache  *cache.RedisCache
	prefix string
	logger logger.Logger
}

func NewRedisStore(c *cache.RedisCache, prefix string, log logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = "client_form_data"
	}
	return &RedisStore{cache: c, prefix: prefix, logger: log}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

// Save overwrites the whole draft. Drafts never expire.
func (s *RedisStore) Save(ctx context.Context, key string, d *domain.FormDraft) error {
	return s.cache.Set(ctx, s.key(key), d, 0)
}

func (s *RedisStore) Load(ctx context.Context, key string) (*domain.FormDraft, bool) {
	raw, err := s.cache.GetRaw(ctx, s.key(key))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Failed to read saved draft", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil, false
	}

	var d domain.FormDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		s.logger.Warn("Discarding unreadable saved draft", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	d.Normalize()
	return &d, true
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, s.key(key))
}
