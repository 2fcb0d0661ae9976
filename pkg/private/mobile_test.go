package private

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/instagram"
	"igresolver/pkg/logger"
	"igresolver/pkg/session"
)

// verifySigned checks a signed_body and returns its JSON payload
func verifySigned(t *testing.T, r *http.Request) map[string]interface{} {
	assert.NoError(t, r.ParseForm())
	assert.Equal(t, SigKeyVersion, r.PostForm.Get("ig_sig_key_version"))

	sig, payload, ok := strings.Cut(r.PostForm.Get("signed_body"), ".")
	assert.True(t, ok)
	mac := hmac.New(sha256.New, []byte(SigKey))
	mac.Write([]byte(payload))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)

	var out map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(payload), &out))
	return out
}

func newMobileServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/si/fetch_headers/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "signup", r.URL.Query().Get("challenge_type"))
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf123"})
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/api/v1/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		body := verifySigned(t, r)
		assert.Equal(t, "csrf123", body["_csrftoken"])
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message":"The password you entered is incorrect.","status":"fail"}`)
			return
		}
		assert.True(t, strings.HasPrefix(body["device_id"].(string), "android-"))
		expires := time.Now().Add(24 * time.Hour)
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess", Expires: expires})
		http.SetCookie(w, &http.Cookie{Name: "ds_user_id", Value: "1", Expires: expires})
		fmt.Fprint(w, `{"logged_in_user":{"pk":1,"username":"bot"},"status":"ok"}`)
	})
	mux.HandleFunc("/api/v1/users/alice/usernameinfo/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AppUserAgent, r.Header.Get("User-Agent"))
		if c, err := r.Cookie("sessionid"); err != nil || c.Value != "sess" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"login_required","status":"fail"}`)
			return
		}
		fmt.Fprint(w, `{"user":{"pk":42,"username":"alice","full_name":"Alice","profile_pic_url":"https://cdn.example/a.jpg"},"status":"ok"}`)
	})
	mux.HandleFunc("/api/v1/users/gone/usernameinfo/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/feed/reels_media/", func(w http.ResponseWriter, r *http.Request) {
		body := verifySigned(t, r)
		assert.Equal(t, []interface{}{"42"}, body["user_ids"])
		fmt.Fprint(w, `{"reels":{"42":{"id":42,"user":{"pk":42,"username":"alice"},"items":[{"id":"1783_42","taken_at":1,"media_type":1,"image_versions2":{"candidates":[{"width":1,"height":1,"url":"u"}]}}]}},"status":"ok"}`)
	})
	mux.HandleFunc("/api/v1/media/1/info/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"id":"1_42","code":"B","taken_at":3,"user":{"pk":42,"username":"alice"},"caption":null,"image_versions2":{"candidates":[]}}],"status":"ok"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newFactory(t *testing.T, server *httptest.Server) *MobileFactory {
	client, err := instagram.NewClient(instagram.Options{Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	return NewMobileFactory(client, server.URL, logger.NewNopLogger())
}

var bot = Credentials{Username: "bot", Password: "secret"}

func TestMobileLoginAndCalls(t *testing.T) {
	factory := newFactory(t, newMobileServer(t))
	ctx := context.Background()

	sess, err := factory.Login(ctx, bot, "")
	require.NoError(t, err)

	user, err := sess.UsernameInfo(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	reels, err := sess.ReelsMedia(ctx, 42)
	require.NoError(t, err)
	require.Contains(t, reels, "42")
	assert.Equal(t, "1783_42", reels["42"].Items[0].ID)

	item, err := sess.MediaInfo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "B", item.Code)
	assert.Nil(t, item.Caption)
}

func TestMobileLoginRejected(t *testing.T) {
	factory := newFactory(t, newMobileServer(t))
	_, err := factory.Login(context.Background(), Credentials{Username: "bot", Password: "wrong"}, "")
	require.Error(t, err)
	assert.False(t, errs.IsSessionExpiry(err))
}

func TestMobileLoginKeepsDeviceID(t *testing.T) {
	factory := newFactory(t, newMobileServer(t))
	sess, err := factory.Login(context.Background(), bot, "android-0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "android-0123456789abcdef", sess.State().DeviceID)
}

func TestMobileResumeFromPersistedState(t *testing.T) {
	factory := newFactory(t, newMobileServer(t))
	ctx := context.Background()

	sess, err := factory.Login(ctx, bot, "")
	require.NoError(t, err)

	data, err := json.Marshal(sess.State())
	require.NoError(t, err)
	restored := &session.State{}
	require.NoError(t, json.Unmarshal(data, restored))

	resumed, err := factory.Resume(ctx, bot, restored)
	require.NoError(t, err)
	assert.Equal(t, sess.State().DeviceID, resumed.State().DeviceID)

	user, err := resumed.UsernameInfo(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.FullName)
}

func TestMobileResumeExpiredCookie(t *testing.T) {
	factory := newFactory(t, newMobileServer(t))
	state := session.NewState("android-0000000000000000")
	state.Set("cookie", session.Binary([]byte(`[{"name":"sessionid","value":"x","expires":"2000-01-01T00:00:00Z"},{"name":"ds_user_id","value":"1"}]`)))

	_, err := factory.Resume(context.Background(), bot, state)
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
}

func TestMobileResumeWithoutCookies(t *testing.T) {
	factory := newFactory(t, newMobileServer(t))

	_, err := factory.Resume(context.Background(), bot, session.NewState("android-0000000000000000"))
	assert.ErrorIs(t, err, errs.ErrSessionExpired)

	state := session.NewState("android-0000000000000000")
	state.Set("cookie", session.Binary([]byte(`[{"name":"csrftoken","value":"x"}]`)))
	_, err = factory.Resume(context.Background(), bot, state)
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
}

func TestMobileLoginRequiredDetection(t *testing.T) {
	factory := newFactory(t, newMobileServer(t))
	ctx := context.Background()

	// a resumed session whose cookie the server no longer accepts
	state := session.NewState("android-0000000000000000")
	state.Set("cookie", session.Binary([]byte(`[{"name":"sessionid","value":"stale"},{"name":"ds_user_id","value":"1"}]`)))
	sess, err := factory.Resume(ctx, bot, state)
	require.NoError(t, err)

	_, err = sess.UsernameInfo(ctx, "alice")
	assert.ErrorIs(t, err, errs.ErrLoginRequired)

	_, err = sess.UsernameInfo(ctx, "gone")
	assert.ErrorIs(t, err, errs.ErrLoginRequired)
}

func TestGenerateDeviceID(t *testing.T) {
	id := generateDeviceID()
	assert.True(t, strings.HasPrefix(id, "android-"))
	assert.Len(t, id, len("android-")+16)
}
