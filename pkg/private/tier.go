// Package private resolves content through an authenticated session on the
// private mobile API.
//
// The Tier owns the session lifecycle. A persisted session is resumed
// without credentials; otherwise, or when the persisted one has expired, it
// logs in. Any call failing with an expiry condition triggers one relogin and
// one retry. Concurrent callers share a single relogin.
package private

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
	"igresolver/pkg/models"
	"igresolver/pkg/normalize"
	"igresolver/pkg/session"
	"igresolver/pkg/shortcode"
)

// LoginHook runs after every successful login or relogin
type LoginHook func(state *session.State)

// Tier is the private API tier
type Tier struct {
	factory Factory
	creds   Credentials
	store   session.Persister
	logger  logger.Logger

	mu         sync.RWMutex
	sess       Session
	deviceID   string
	generation uint64
	hooks      []LoginHook

	group singleflight.Group
}

// New creates the tier. No network traffic happens until Start or the
// first call.
func New(factory Factory, creds Credentials, store session.Persister, log logger.Logger) *Tier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tier{
		factory: factory,
		creds:   creds,
		store:   store,
		logger:  log.WithFields(map[string]interface{}{"tier": "private", "username": creds.Username}),
	}
}

// OnLogin registers a hook fired on every (re)login
func (t *Tier) OnLogin(hook LoginHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, hook)
}

// Start establishes the session: resume the persisted one or log in
func (t *Tier) Start(ctx context.Context) error {
	_, err, _ := t.group.Do("start", func() (interface{}, error) {
		t.mu.RLock()
		started := t.sess != nil
		t.mu.RUnlock()
		if started {
			return nil, nil
		}
		return nil, t.start(context.WithoutCancel(ctx))
	})
	return err
}

func (t *Tier) start(ctx context.Context) error {
	state, err := t.store.Load()
	if err != nil {
		t.logger.WithError(err).Warn("persisted session unusable, logging in again")
		state = nil
	}

	if state == nil {
		return t.login(ctx, "")
	}

	t.mu.Lock()
	t.deviceID = state.DeviceID
	t.mu.Unlock()

	sess, err := t.factory.Resume(ctx, t.creds, state)
	if err != nil {
		switch {
		case errs.IsSessionExpiry(err):
			t.logger.WithError(err).Info("persisted session expired")
		case errors.Is(err, errs.ErrCorruptState):
			t.logger.WithError(err).Warn("persisted session unusable, logging in again")
		default:
			return err
		}
		return t.login(ctx, state.DeviceID)
	}

	t.mu.Lock()
	t.sess = sess
	t.generation++
	t.mu.Unlock()
	t.logger.Info("resumed persisted session")
	return nil
}

// login opens a fresh session and runs the login callback
func (t *Tier) login(ctx context.Context, deviceID string) error {
	sess, err := t.factory.Login(ctx, t.creds, deviceID)
	if err != nil {
		t.logger.WithError(err).Error("login failed")
		return err
	}

	state := sess.State()
	t.mu.Lock()
	t.sess = sess
	t.deviceID = state.DeviceID
	t.generation++
	hooks := append([]LoginHook(nil), t.hooks...)
	t.mu.Unlock()

	if err := t.store.Save(state); err != nil {
		t.logger.WithError(err).Error("failed to persist session")
	}
	for _, hook := range hooks {
		hook(state)
	}
	t.logger.InfoWithFields("logged in", map[string]interface{}{"device_id": state.DeviceID})
	return nil
}

// relogin replaces the session observed at generation gen. Callers that
// arrive after it was already replaced return immediately.
func (t *Tier) relogin(ctx context.Context, gen uint64) error {
	if t.currentGeneration() != gen {
		return nil
	}
	_, err, _ := t.group.Do("relogin", func() (interface{}, error) {
		t.mu.RLock()
		deviceID := t.deviceID
		stale := t.generation != gen
		t.mu.RUnlock()
		if stale {
			return nil, nil
		}
		t.logger.Info("session expired, logging in again")
		return nil, t.login(context.WithoutCancel(ctx), deviceID)
	})
	return err
}

func (t *Tier) currentGeneration() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

func (t *Tier) current(ctx context.Context) (Session, uint64, error) {
	t.mu.RLock()
	sess, gen := t.sess, t.generation
	t.mu.RUnlock()
	if sess != nil {
		return sess, gen, nil
	}

	if err := t.Start(ctx); err != nil {
		return nil, 0, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.sess == nil {
		return nil, 0, errs.New(errs.ErrorTypeUpstreamUnavailable, "private session not established")
	}
	return t.sess, t.generation, nil
}

// perform runs fn, relogging in and retrying once on session expiry. The
// retry's error is returned as is.
func (t *Tier) perform(ctx context.Context, fn func(Session) error) error {
	sess, gen, err := t.current(ctx)
	if err != nil {
		return err
	}

	err = fn(sess)
	if err == nil || !errs.IsSessionExpiry(err) {
		return err
	}

	t.logger.WithError(err).Warn("session rejected")
	if err := t.relogin(ctx, gen); err != nil {
		return err
	}

	t.mu.RLock()
	sess = t.sess
	t.mu.RUnlock()
	return fn(sess)
}

// GetUser resolves a profile by username
func (t *Tier) GetUser(ctx context.Context, username string) (*models.UserProfile, error) {
	log := t.logger.WithFields(map[string]interface{}{"op": "get_user", "target": username})
	log.Debug("resolving user")

	var user *normalize.PrivateUser
	err := t.perform(ctx, func(s Session) error {
		var err error
		user, err = s.UsernameInfo(ctx, username)
		return err
	})
	if err != nil {
		log.WithError(err).Error("get_user failed")
		return nil, err
	}
	return normalize.PrivateUserProfile(*user), nil
}

// GetStories resolves the live stories of a user. A user without a reel
// yields an empty one.
func (t *Tier) GetStories(ctx context.Context, username string) (*models.Reel, error) {
	log := t.logger.WithFields(map[string]interface{}{"op": "get_stories", "target": username})
	log.Debug("resolving stories")

	profile, err := t.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}

	var reels map[string]normalize.PrivateReel
	err = t.perform(ctx, func(s Session) error {
		var err error
		reels, err = s.ReelsMedia(ctx, int64(profile.PK))
		return err
	})
	if err != nil {
		log.WithError(err).Error("get_stories failed")
		return nil, err
	}

	reel, ok := reels[strconv.FormatInt(int64(profile.PK), 10)]
	if !ok {
		return &models.Reel{ID: profile.PK, User: profile.Ref(), Items: []models.Story{}}, nil
	}
	return normalize.PrivateReelToModel(reel, func(id string, err error) {
		log.WithError(err).WithField("story_id", id).Warn("dropping story item")
	}), nil
}

// GetStory returns the first story whose id starts with storyID, or nil
// when there is none
func (t *Tier) GetStory(ctx context.Context, username, storyID string) (*models.Story, error) {
	reel, err := t.GetStories(ctx, username)
	if err != nil {
		return nil, err
	}
	for i := range reel.Items {
		if strings.HasPrefix(reel.Items[i].ID, storyID) {
			return &reel.Items[i], nil
		}
	}
	return nil, nil
}

// GetPost resolves a post by shortcode
func (t *Tier) GetPost(ctx context.Context, code string) (*models.Post, error) {
	log := t.logger.WithFields(map[string]interface{}{"op": "get_post", "shortcode": code})
	log.Debug("resolving post")

	id, err := shortcode.ToID(code)
	if err != nil {
		return nil, err
	}

	var item *normalize.PrivateItem
	err = t.perform(ctx, func(s Session) error {
		var err error
		item, err = s.MediaInfo(ctx, id)
		return err
	})
	if err != nil {
		log.WithError(err).Error("get_post failed")
		return nil, err
	}
	return normalize.PrivatePost(*item)
}
