package private

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
	"igresolver/pkg/models"
	"igresolver/pkg/normalize"
	"igresolver/pkg/session"
)

type fakeSession struct {
	deviceID string
	users    map[string]*normalize.PrivateUser
	reels    map[string]normalize.PrivateReel
	items    map[int64]*normalize.PrivateItem
	// err, when set, is returned by every call
	err   error
	calls int32
}

func (s *fakeSession) UsernameInfo(ctx context.Context, username string) (*normalize.PrivateUser, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[username]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, "user %s not found", username)
	}
	return u, nil
}

func (s *fakeSession) ReelsMedia(ctx context.Context, userIDs ...int64) (map[string]normalize.PrivateReel, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.reels, nil
}

func (s *fakeSession) MediaInfo(ctx context.Context, mediaID int64) (*normalize.PrivateItem, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	item, ok := s.items[mediaID]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, "media %d not found", mediaID)
	}
	return item, nil
}

func (s *fakeSession) State() *session.State {
	state := session.NewState(s.deviceID)
	state.Set("cookie", session.Binary([]byte("sessionid=abc")))
	return state
}

type fakeFactory struct {
	mu        sync.Mutex
	logins    []string
	resumes   int
	loginErr  error
	resumeErr error
	// sessions are handed out by Login in order; the last one repeats
	sessions []*fakeSession
	resumed  *fakeSession
}

func (f *fakeFactory) Login(ctx context.Context, creds Credentials, deviceID string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, deviceID)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	s := f.sessions[0]
	if len(f.sessions) > 1 {
		f.sessions = f.sessions[1:]
	}
	if deviceID == "" {
		deviceID = "android-fresh"
	}
	s.deviceID = deviceID
	return s, nil
}

func (f *fakeFactory) Resume(ctx context.Context, creds Credentials, state *session.State) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	f.resumed.deviceID = state.DeviceID
	return f.resumed, nil
}

func (f *fakeFactory) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logins)
}

type memStore struct {
	mu      sync.Mutex
	state   *session.State
	saves   int
	loadErr error
	saveErr error
}

func (m *memStore) Load() (*session.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.loadErr
}

func (m *memStore) Save(state *session.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = state
	return nil
}

var aliceUser = &normalize.PrivateUser{PK: 42, Username: "alice", FullName: "Alice", ProfilePicURL: "https://cdn.example/a.jpg"}

func healthySession() *fakeSession {
	return &fakeSession{
		users: map[string]*normalize.PrivateUser{"alice": aliceUser},
		reels: map[string]normalize.PrivateReel{
			"42": {
				ID:   42,
				User: *aliceUser,
				Items: []normalize.PrivateItem{
					{ID: "1783990011_42", TakenAt: 10, ImageVersions2: &models.ImageVersions{Candidates: []models.Candidate{{Width: 1, Height: 1, URL: "a"}}}},
					{ID: "9911220033_42", TakenAt: 20, VideoVersions: []models.Candidate{{Width: 2, Height: 2, URL: "b"}}},
				},
			},
		},
		items: map[int64]*normalize.PrivateItem{},
	}
}

func newTier(factory Factory, store session.Persister) *Tier {
	return New(factory, Credentials{Username: "bot", Password: "secret"}, store, logger.NewTestLogger())
}

func TestStartLogsInWithoutPersistedState(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{healthySession()}}
	store := &memStore{}
	tier := newTier(factory, store)

	var hooked []*session.State
	tier.OnLogin(func(state *session.State) { hooked = append(hooked, state) })

	require.NoError(t, tier.Start(context.Background()))

	assert.Equal(t, []string{""}, factory.logins)
	assert.Zero(t, factory.resumes)
	require.NotNil(t, store.state)
	assert.Equal(t, "android-fresh", store.state.DeviceID)
	require.Len(t, hooked, 1)
}

func TestStartResumesPersistedState(t *testing.T) {
	factory := &fakeFactory{resumed: healthySession()}
	store := &memStore{state: session.NewState("android-saved")}
	tier := newTier(factory, store)

	require.NoError(t, tier.Start(context.Background()))
	require.NoError(t, tier.Start(context.Background()))

	assert.Equal(t, 1, factory.resumes)
	assert.Empty(t, factory.logins)
	assert.Zero(t, store.saves)
}

func TestStartReloginsWhenPersistedSessionExpired(t *testing.T) {
	factory := &fakeFactory{
		resumeErr: errs.New(errs.ErrorTypeSessionExpired, "cookie sessionid expired"),
		sessions:  []*fakeSession{healthySession()},
	}
	store := &memStore{state: session.NewState("android-saved")}
	tier := newTier(factory, store)

	require.NoError(t, tier.Start(context.Background()))
	assert.Equal(t, []string{"android-saved"}, factory.logins)
	assert.Equal(t, 1, store.saves)
}

func TestStartTreatsCorruptStateAsAbsent(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{healthySession()}}
	store := &memStore{loadErr: errs.New(errs.ErrorTypeCorruptState, "bad json")}
	tier := newTier(factory, store)

	require.NoError(t, tier.Start(context.Background()))
	assert.Equal(t, []string{""}, factory.logins)
}

func TestSaveFailureDoesNotFailLogin(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{healthySession()}}
	store := &memStore{saveErr: errors.New("disk full")}
	tier := newTier(factory, store)

	profile, err := tier.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, 1, store.saves)
}

func TestLoginFailurePropagates(t *testing.T) {
	boom := errs.New(errs.ErrorTypeAuth, "bad password")
	factory := &fakeFactory{loginErr: boom}
	tier := newTier(factory, &memStore{})

	_, err := tier.GetUser(context.Background(), "alice")
	assert.Same(t, boom, err)
}

func TestExpiryTriggersExactlyOneReloginAndRetry(t *testing.T) {
	expired := &fakeSession{err: errs.New(errs.ErrorTypeLoginRequired, "login_required")}
	fresh := healthySession()
	factory := &fakeFactory{sessions: []*fakeSession{expired, fresh}}
	store := &memStore{}
	tier := newTier(factory, store)

	var logins int32
	tier.OnLogin(func(*session.State) { atomic.AddInt32(&logins, 1) })

	profile, err := tier.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ID(42), profile.PK)

	assert.Equal(t, []string{"", "android-fresh"}, factory.logins, "relogin reuses the device id")
	assert.Equal(t, int32(1), atomic.LoadInt32(&expired.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fresh.calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
	assert.Equal(t, 2, store.saves)
}

func TestSecondExpiryIsFatal(t *testing.T) {
	first := &fakeSession{err: errs.New(errs.ErrorTypeSessionExpired, "first")}
	secondErr := errs.New(errs.ErrorTypeSessionExpired, "second")
	second := &fakeSession{err: secondErr}
	factory := &fakeFactory{sessions: []*fakeSession{first, second}}
	tier := newTier(factory, &memStore{})

	_, err := tier.GetUser(context.Background(), "alice")
	assert.Same(t, secondErr, err)
	assert.Equal(t, 2, factory.loginCount())
	assert.Equal(t, int32(1), atomic.LoadInt32(&second.calls))
}

func TestNonExpiryErrorsAreNotRetried(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{healthySession()}}
	tier := newTier(factory, &memStore{})

	_, err := tier.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, 1, factory.loginCount())
}

func TestConcurrentExpirySharesOneRelogin(t *testing.T) {
	expired := &fakeSession{err: errs.New(errs.ErrorTypeLoginRequired, "login_required")}
	factory := &fakeFactory{sessions: []*fakeSession{expired, healthySession()}}
	tier := newTier(factory, &memStore{})
	require.NoError(t, tier.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tier.GetUser(context.Background(), "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, factory.loginCount())
}

func TestGetStoryMatchesIDPrefix(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{healthySession()}}
	tier := newTier(factory, &memStore{})

	story, err := tier.GetStory(context.Background(), "alice", "1783")
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.Equal(t, "1783990011_42", story.ID)
	assert.Equal(t, models.MediaTypeImage, story.MediaType)

	story, err = tier.GetStory(context.Background(), "alice", "9911")
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.Equal(t, models.MediaTypeVideo, story.MediaType)

	story, err = tier.GetStory(context.Background(), "alice", "5555")
	require.NoError(t, err)
	assert.Nil(t, story)
}

func TestStartReloginsWhenResumedStateIsCorrupt(t *testing.T) {
	factory := &fakeFactory{
		resumeErr: errs.New(errs.ErrorTypeCorruptState, "cookie setting is text, not binary"),
		sessions:  []*fakeSession{healthySession()},
	}
	store := &memStore{state: session.NewState("android-saved")}
	tier := newTier(factory, store)

	profile, err := tier.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, 1, factory.resumes)
	assert.Equal(t, []string{"android-saved"}, factory.logins)
	assert.Equal(t, 1, store.saves)
}

func TestStartReturnsOtherResumeErrors(t *testing.T) {
	boom := errs.New(errs.ErrorTypeUpstreamUnavailable, "connection refused")
	factory := &fakeFactory{resumeErr: boom}
	tier := newTier(factory, &memStore{state: session.NewState("android-saved")})

	assert.Same(t, boom, tier.Start(context.Background()))
	assert.Zero(t, factory.loginCount())
}

func TestGetStoriesLogsDroppedItems(t *testing.T) {
	sess := healthySession()
	reel := sess.reels["42"]
	reel.Items = append(reel.Items, normalize.PrivateItem{ID: "5550001_42", TakenAt: 30})
	sess.reels["42"] = reel

	log := logger.NewTestLogger()
	tier := New(&fakeFactory{sessions: []*fakeSession{sess}}, Credentials{Username: "bot", Password: "secret"}, &memStore{}, log)

	got, err := tier.GetStories(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)

	warnings := log.GetMessagesByLevel("WARN")
	require.Len(t, warnings, 1)
	assert.Equal(t, "dropping story item", warnings[0].Message)
	assert.Equal(t, "5550001_42", warnings[0].Fields["story_id"])
	assert.ErrorIs(t, warnings[0].Error, errs.ErrUnsupportedMedia)
}

func TestGetStoriesWithoutReel(t *testing.T) {
	sess := healthySession()
	sess.reels = map[string]normalize.PrivateReel{}
	tier := newTier(&fakeFactory{sessions: []*fakeSession{sess}}, &memStore{})

	reel, err := tier.GetStories(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ID(42), reel.ID)
	assert.Equal(t, "alice", reel.User.Username)
	assert.Empty(t, reel.Items)
	assert.NotNil(t, reel.Items)
}

func TestGetPostUsesMediaID(t *testing.T) {
	sess := healthySession()
	// "B" decodes to media id 1
	sess.items[1] = &normalize.PrivateItem{
		ID:             "1_42",
		Code:           "B",
		TakenAt:        99,
		User:           aliceUser,
		ImageVersions2: &models.ImageVersions{Candidates: []models.Candidate{{Width: 1, Height: 1, URL: "x"}}},
	}
	tier := newTier(&fakeFactory{sessions: []*fakeSession{sess}}, &memStore{})

	post, err := tier.GetPost(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "B", post.Code)
	assert.Equal(t, "", post.Caption)
	assert.Equal(t, int64(99), post.TakenAt)
}

func TestGetPostRejectsBadShortcode(t *testing.T) {
	tier := newTier(&fakeFactory{sessions: []*fakeSession{healthySession()}}, &memStore{})
	_, err := tier.GetPost(context.Background(), "a!b")
	assert.ErrorIs(t, err, errs.ErrInvalidCharacter)
}
