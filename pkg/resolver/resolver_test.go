package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
	"igresolver/pkg/models"
)

type stubAPI struct {
	post   *models.Post
	user   *models.UserProfile
	reel   *models.Reel
	story  *models.Story
	err    error
	calls  int
	onCall func(ctx context.Context)
}

func (s *stubAPI) hit(ctx context.Context) error {
	s.calls++
	if s.onCall != nil {
		s.onCall(ctx)
	}
	return s.err
}

func (s *stubAPI) GetPost(ctx context.Context, shortcode string) (*models.Post, error) {
	if err := s.hit(ctx); err != nil {
		return nil, err
	}
	return s.post, nil
}

func (s *stubAPI) GetUser(ctx context.Context, username string) (*models.UserProfile, error) {
	if err := s.hit(ctx); err != nil {
		return nil, err
	}
	return s.user, nil
}

func (s *stubAPI) GetStories(ctx context.Context, username string) (*models.Reel, error) {
	if err := s.hit(ctx); err != nil {
		return nil, err
	}
	return s.reel, nil
}

func (s *stubAPI) GetStory(ctx context.Context, username, storyID string) (*models.Story, error) {
	if err := s.hit(ctx); err != nil {
		return nil, err
	}
	return s.story, nil
}

func TestFallbackCallsPrivateTierOnceAndReturnsItsResult(t *testing.T) {
	embed := &stubAPI{err: errs.New(errs.ErrorTypeExtractionMiss, "no embed strategy matched Cxxxxxxxxxx")}
	want := &models.Post{Code: "Cxxxxxxxxxx", Caption: "from private", Media: []models.MediaItem{models.NewImage()}}
	private := &stubAPI{post: want}

	log := logger.NewTestLogger()
	p := New(log, Tier{Name: "embed", API: embed}, Tier{Name: "private", API: private})

	got, err := p.GetPost(context.Background(), "Cxxxxxxxxxx")
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 1, embed.calls)
	assert.Equal(t, 1, private.calls)
	assert.True(t, log.HasMessage("tier missed, falling back"))
}

func TestFirstSuccessWins(t *testing.T) {
	embed := &stubAPI{user: &models.UserProfile{Username: "alice"}}
	private := &stubAPI{user: &models.UserProfile{Username: "other"}}
	p := New(nil, Tier{Name: "embed", API: embed}, Tier{Name: "private", API: private})

	user, err := p.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Zero(t, private.calls)
}

func TestLastTierErrorIsUnmodified(t *testing.T) {
	last := errs.New(errs.ErrorTypeSessionExpired, "second expiry")
	p := New(nil,
		Tier{Name: "embed", API: &stubAPI{err: errors.New("miss")}},
		Tier{Name: "private", API: &stubAPI{err: last}},
	)

	_, err := p.GetStories(context.Background(), "alice")
	assert.Same(t, last, err)
}

func TestAbsentStoryIsNotAFailure(t *testing.T) {
	private := &stubAPI{}
	p := New(nil, Tier{Name: "embed", API: &stubAPI{err: errors.New("miss")}}, Tier{Name: "private", API: private})

	story, err := p.GetStory(context.Background(), "alice", "1783")
	require.NoError(t, err)
	assert.Nil(t, story)
	assert.Equal(t, 1, private.calls)
}

func TestNoTiers(t *testing.T) {
	_, err := New(nil).GetPost(context.Background(), "B")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}

func TestTierTimeoutIsApplied(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	slow := &stubAPI{
		err: errors.New("miss"),
		onCall: func(ctx context.Context) {
			deadline, hasDeadline = ctx.Deadline()
		},
	}
	private := &stubAPI{post: &models.Post{Code: "B"}}
	p := New(nil, Tier{Name: "embed", API: slow, Timeout: time.Minute}, Tier{Name: "private", API: private})

	_, err := p.GetPost(context.Background(), "B")
	require.NoError(t, err)
	assert.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestCancelledContextStopsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	embed := &stubAPI{err: context.Canceled, onCall: func(context.Context) { cancel() }}
	private := &stubAPI{post: &models.Post{}}
	p := New(nil, Tier{Name: "embed", API: embed}, Tier{Name: "private", API: private})

	_, err := p.GetPost(ctx, "B")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, private.calls)
}

func TestTiersNames(t *testing.T) {
	p := New(nil, Tier{Name: "embed"}, Tier{Name: "private"})
	assert.Equal(t, []string{"embed", "private"}, p.Tiers())
}
