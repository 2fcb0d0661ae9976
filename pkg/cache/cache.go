package cache

import (
	"context"
	"encoding/json"
	"time"

	"igresolver/pkg/config"
	"igresolver/pkg/logger"
	"igresolver/pkg/models"
	"igresolver/pkg/resolver"
)

// WithCache returns the cached value for key, or calls produce and caches
// its result for ttl. Store failures and undecodable entries are treated as
// misses; producer errors are returned and nothing is stored.
func WithCache[T any](ctx context.Context, store Store, log logger.Logger, key string, ttl time.Duration, produce func(context.Context) (T, error)) (T, error) {
	data, found, err := store.Get(ctx, key)
	switch {
	case err != nil:
		log.WarnWithFields("cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	case found:
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			log.DebugWithFields("cache hit", map[string]interface{}{"key": key})
			return cached, nil
		}
		log.WarnWithFields("cached entry undecodable", map[string]interface{}{"key": key})
	}

	val, err := produce(ctx)
	if err != nil {
		return val, err
	}

	encoded, err := json.Marshal(val)
	if err != nil {
		log.WarnWithFields("cache encode failed", map[string]interface{}{"key": key, "error": err.Error()})
		return val, nil
	}
	if err := store.Set(ctx, key, encoded, ttl); err != nil {
		log.WarnWithFields("cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
	return val, nil
}

// Cache keys by content kind
func PostKey(shortcode string) string { return "post:" + shortcode }
func UserKey(username string) string  { return "user:" + username }
func StoryKey(storyID string) string  { return "story:" + storyID }

// API puts a cache in front of another resolver.API. Story listings change
// too often and are passed through uncached.
type API struct {
	next   resolver.API
	store  Store
	ttl    config.CacheConfig
	logger logger.Logger
}

// NewAPI wraps next with store
func NewAPI(next resolver.API, store Store, ttl config.CacheConfig, log logger.Logger) *API {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &API{next: next, store: store, ttl: ttl, logger: log.WithField("component", "cache")}
}

func (a *API) GetPost(ctx context.Context, shortcode string) (*models.Post, error) {
	return WithCache(ctx, a.store, a.logger, PostKey(shortcode), a.ttl.PostTTL,
		func(ctx context.Context) (*models.Post, error) {
			return a.next.GetPost(ctx, shortcode)
		})
}

func (a *API) GetUser(ctx context.Context, username string) (*models.UserProfile, error) {
	return WithCache(ctx, a.store, a.logger, UserKey(username), a.ttl.UserTTL,
		func(ctx context.Context) (*models.UserProfile, error) {
			return a.next.GetUser(ctx, username)
		})
}

func (a *API) GetStories(ctx context.Context, username string) (*models.Reel, error) {
	return a.next.GetStories(ctx, username)
}

// GetStory caches by story id alone. An absent story is cached as null.
func (a *API) GetStory(ctx context.Context, username, storyID string) (*models.Story, error) {
	return WithCache(ctx, a.store, a.logger, StoryKey(storyID), a.ttl.StoryTTL,
		func(ctx context.Context) (*models.Story, error) {
			return a.next.GetStory(ctx, username, storyID)
		})
}

// Ping checks the backing store
func (a *API) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}
