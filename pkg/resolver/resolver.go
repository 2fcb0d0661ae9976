// Package resolver composes the retrieval tiers into one API with ordered
// fallback.
package resolver

import (
	"context"
	"time"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
	"igresolver/pkg/models"
)

// API is what every tier and the composed resolver serve
type API interface {
	GetPost(ctx context.Context, shortcode string) (*models.Post, error)
	GetUser(ctx context.Context, username string) (*models.UserProfile, error)
	GetStories(ctx context.Context, username string) (*models.Reel, error)
	// GetStory returns nil without error when no story matches
	GetStory(ctx context.Context, username, storyID string) (*models.Story, error)
}

// Tier is one entry of the fallback chain
type Tier struct {
	Name string
	API  API
	// Timeout bounds each call to this tier; zero means none
	Timeout time.Duration
}

// Resolve tries the tiers in order and returns the first success. A failing
// tier other than the last is logged and skipped; the last tier's error is
// returned unmodified.
func Resolve[T any](ctx context.Context, log logger.Logger, tiers []Tier, op string, call func(context.Context, API) (T, error)) (T, error) {
	var zero T
	if len(tiers) == 0 {
		return zero, errs.New(errs.ErrorTypeUpstreamUnavailable, "no tiers configured")
	}

	last := len(tiers) - 1
	for i, tier := range tiers[:last] {
		result, err := callTier(ctx, tier, call)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		log.WarnWithFields("tier missed, falling back", map[string]interface{}{
			"op":    op,
			"tier":  tier.Name,
			"next":  tiers[i+1].Name,
			"error": err.Error(),
		})
	}
	return callTier(ctx, tiers[last], call)
}

func callTier[T any](ctx context.Context, tier Tier, call func(context.Context, API) (T, error)) (T, error) {
	if tier.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tier.Timeout)
		defer cancel()
	}
	return call(ctx, tier.API)
}

// Pipeline is the API backed by an ordered list of tiers
type Pipeline struct {
	tiers  []Tier
	logger logger.Logger
}

// New creates a pipeline over tiers, tried in the given order
func New(log logger.Logger, tiers ...Tier) *Pipeline {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Pipeline{tiers: tiers, logger: log.WithField("component", "resolver")}
}

// Tiers returns the configured tier names in order
func (p *Pipeline) Tiers() []string {
	names := make([]string, len(p.tiers))
	for i, t := range p.tiers {
		names[i] = t.Name
	}
	return names
}

func (p *Pipeline) GetPost(ctx context.Context, shortcode string) (*models.Post, error) {
	return Resolve(ctx, p.logger.WithField("shortcode", shortcode), p.tiers, "get_post",
		func(ctx context.Context, api API) (*models.Post, error) {
			return api.GetPost(ctx, shortcode)
		})
}

func (p *Pipeline) GetUser(ctx context.Context, username string) (*models.UserProfile, error) {
	return Resolve(ctx, p.logger.WithField("username", username), p.tiers, "get_user",
		func(ctx context.Context, api API) (*models.UserProfile, error) {
			return api.GetUser(ctx, username)
		})
}

func (p *Pipeline) GetStories(ctx context.Context, username string) (*models.Reel, error) {
	return Resolve(ctx, p.logger.WithField("username", username), p.tiers, "get_stories",
		func(ctx context.Context, api API) (*models.Reel, error) {
			return api.GetStories(ctx, username)
		})
}

func (p *Pipeline) GetStory(ctx context.Context, username, storyID string) (*models.Story, error) {
	log := p.logger.WithFields(map[string]interface{}{"username": username, "story_id": storyID})
	return Resolve(ctx, log, p.tiers, "get_story",
		func(ctx context.Context, api API) (*models.Story, error) {
			return api.GetStory(ctx, username, storyID)
		})
}
