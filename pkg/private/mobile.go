package private

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/instagram"
	"igresolver/pkg/logger"
	"igresolver/pkg/normalize"
	"igresolver/pkg/session"
)

// Mobile app identity presented to the private API
const (
	AppVersion    = "76.0.0.15.395"
	AppUserAgent  = "Instagram " + AppVersion + " Android (24/7.0; 640dpi; 1440x2560; samsung; SM-G930F; herolte; samsungexynos8890; en_US; 138226743)"
	SigKey        = "19ce5f445dbfd9d29c59dc2a78c616a7fc090a8e018b9267bc4240a30244c53b"
	SigKeyVersion = "4"
	Capabilities  = "3brTvw=="
	APIPath       = "/api/v1/"
)

// Settings keys persisted in the session state
const (
	settingUUID      = "uuid"
	settingPhoneID   = "phone_id"
	settingAdID      = "ad_id"
	settingCookie    = "cookie"
	settingCreatedTS = "created_ts"
	settingUsername  = "username"
)

// Credentials identify the account the session logs in with
type Credentials struct {
	Username string
	Password string
}

// Session is an authenticated private API session
type Session interface {
	UsernameInfo(ctx context.Context, username string) (*normalize.PrivateUser, error)
	ReelsMedia(ctx context.Context, userIDs ...int64) (map[string]normalize.PrivateReel, error)
	MediaInfo(ctx context.Context, mediaID int64) (*normalize.PrivateItem, error)
	// State snapshots what is needed to resume the session later
	State() *session.State
}

// Factory opens sessions
type Factory interface {
	// Login submits credentials. An empty deviceID generates a new device.
	Login(ctx context.Context, creds Credentials, deviceID string) (Session, error)
	// Resume reopens a persisted session without submitting credentials
	Resume(ctx context.Context, creds Credentials, state *session.State) (Session, error)
}

// MobileFactory opens sessions against the mobile API
type MobileFactory struct {
	client  *instagram.Client
	baseURL string
	logger  logger.Logger
	now     func() time.Time
}

// NewMobileFactory creates a factory; baseURL defaults to the mobile host
func NewMobileFactory(client *instagram.Client, baseURL string, log logger.Logger) *MobileFactory {
	if baseURL == "" {
		baseURL = instagram.MobileBaseURL
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MobileFactory{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/") + APIPath,
		logger:  log.WithField("tier", "private"),
		now:     time.Now,
	}
}

// storedCookie is the persisted form of a session cookie
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

type mobileSession struct {
	factory  *MobileFactory
	username string
	deviceID string
	uuid     string
	phoneID  string
	adID     string
	created  int64

	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

// Login performs the mobile login flow: fetch a csrf token, then post the
// signed credentials
func (f *MobileFactory) Login(ctx context.Context, creds Credentials, deviceID string) (Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, errs.New(errs.ErrorTypeAuth, "username and password are required to log in")
	}

	s := &mobileSession{
		factory:  f,
		username: creds.Username,
		deviceID: deviceID,
		uuid:     uuid.NewString(),
		phoneID:  uuid.NewString(),
		adID:     uuid.NewString(),
		created:  f.now().Unix(),
		cookies:  map[string]*http.Cookie{},
	}
	if s.deviceID == "" {
		s.deviceID = generateDeviceID()
	}

	f.logger.InfoWithFields("logging in", map[string]interface{}{
		"username":  creds.Username,
		"device_id": s.deviceID,
	})

	if _, err := s.call(ctx, http.MethodGet, "si/fetch_headers/", url.Values{
		"challenge_type": {"signup"},
		"guid":           {strings.ReplaceAll(s.uuid, "-", "")},
	}, nil); err != nil {
		return nil, fmt.Errorf("fetch csrf token: %w", err)
	}

	var resp struct {
		LoggedInUser *struct {
			PK int64 `json:"pk"`
		} `json:"logged_in_user"`
		Message string `json:"message"`
	}
	body, err := s.call(ctx, http.MethodPost, "accounts/login/", nil, map[string]interface{}{
		"device_id":           s.deviceID,
		"guid":                s.uuid,
		"adid":                s.adID,
		"phone_id":            s.phoneID,
		"_csrftoken":          s.csrfToken(),
		"username":            creds.Username,
		"password":            creds.Password,
		"login_attempt_count": "0",
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "decode login response")
	}
	if resp.LoggedInUser == nil {
		return nil, errs.New(errs.ErrorTypeAuth, "login rejected: %s", resp.Message)
	}
	if err := s.checkCookies(); err != nil {
		return nil, err
	}
	return s, nil
}

// Resume restores a session from persisted state. Missing or expired auth
// cookies mean the session has expired.
func (f *MobileFactory) Resume(ctx context.Context, creds Credentials, state *session.State) (Session, error) {
	if state == nil {
		return nil, errs.New(errs.ErrorTypeSessionExpired, "no persisted session")
	}

	s := &mobileSession{
		factory:  f,
		username: creds.Username,
		deviceID: state.DeviceID,
		uuid:     text(state, settingUUID),
		phoneID:  text(state, settingPhoneID),
		adID:     text(state, settingAdID),
		cookies:  map[string]*http.Cookie{},
	}
	if v, ok := state.Get(settingCreatedTS); ok {
		if raw, ok := v.AsJSON(); ok {
			_ = json.Unmarshal(raw, &s.created)
		}
	}

	v, ok := state.Get(settingCookie)
	if !ok {
		return nil, errs.New(errs.ErrorTypeSessionExpired, "persisted session has no cookies")
	}
	data, ok := v.AsBinary()
	if !ok {
		return nil, errs.New(errs.ErrorTypeCorruptState, "cookie setting is %s, not binary", v.Kind())
	}
	var cookies []storedCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSessionExpired, err, "persisted cookies unreadable")
	}
	for _, c := range cookies {
		s.cookies[c.Name] = &http.Cookie{Name: c.Name, Value: c.Value, Expires: c.Expires}
	}
	if err := s.checkCookies(); err != nil {
		return nil, err
	}

	f.logger.DebugWithFields("resumed session", map[string]interface{}{
		"username":  creds.Username,
		"device_id": s.deviceID,
	})
	return s, nil
}

func text(state *session.State, key string) string {
	if v, ok := state.Get(key); ok {
		if s, ok := v.AsText(); ok {
			return s
		}
	}
	return ""
}

// generateDeviceID produces an android-<16 hex> device id
func generateDeviceID() string {
	id := uuid.New()
	return "android-" + hex.EncodeToString(id[:8])
}

func (s *mobileSession) checkCookies() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.factory.now()
	for _, name := range []string{"sessionid", "ds_user_id"} {
		c, ok := s.cookies[name]
		if !ok || c.Value == "" {
			return errs.New(errs.ErrorTypeSessionExpired, "cookie %s is missing", name)
		}
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			return errs.New(errs.ErrorTypeSessionExpired, "cookie %s expired at %s", name, c.Expires.Format(time.RFC3339))
		}
	}
	return nil
}

func (s *mobileSession) csrfToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cookies["csrftoken"]; ok {
		return c.Value
	}
	return "missing"
}

func (s *mobileSession) cookieList() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Cookie, 0, len(s.cookies))
	for _, c := range s.cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}
	return out
}

func (s *mobileSession) keepCookies(cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cookies {
		if c.MaxAge < 0 || (c.Value == "" && c.Name != "") {
			delete(s.cookies, c.Name)
			continue
		}
		kept := &http.Cookie{Name: c.Name, Value: c.Value, Expires: c.Expires}
		if c.MaxAge > 0 {
			kept.Expires = s.factory.now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		s.cookies[c.Name] = kept
	}
}

// call issues an API request. A non-nil signed map is posted as a signed
// body.
func (s *mobileSession) call(ctx context.Context, method, endpoint string, query url.Values, signed map[string]interface{}) ([]byte, error) {
	target := s.factory.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	header := http.Header{}
	header.Set("User-Agent", AppUserAgent)
	header.Set("Accept", "*/*")
	header.Set("Accept-Language", "en-US")
	header.Set("X-IG-Capabilities", Capabilities)
	header.Set("X-IG-Connection-Type", "WIFI")
	header.Set("X-IG-App-ID", "567067343352427")
	header.Set("X-FB-HTTP-Engine", "Liger")

	req := instagram.Request{Method: method, URL: target, Header: header, Cookies: s.cookieList()}
	if signed != nil {
		body, err := signBody(signed)
		if err != nil {
			return nil, err
		}
		header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		req.Body = []byte(body.Encode())
	}

	resp, err := s.factory.client.Do(ctx, req)
	if resp != nil {
		s.keepCookies(resp.Cookies)
	}
	if err != nil {
		return nil, classify(resp, err)
	}
	return resp.Body, nil
}

// classify turns authentication failures into LoginRequired
func classify(resp *instagram.Response, err error) error {
	if resp == nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return errs.Wrap(errs.ErrorTypeLoginRequired, err, "unauthorized")
	case http.StatusForbidden:
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(resp.Body, &body) == nil && body.Message == "login_required" {
			return errs.Wrap(errs.ErrorTypeLoginRequired, err, "login required")
		}
	}
	return err
}

func signBody(params map[string]interface{}) (url.Values, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "encode signed body")
	}
	mac := hmac.New(sha256.New, []byte(SigKey))
	mac.Write(data)

	return url.Values{
		"ig_sig_key_version": {SigKeyVersion},
		"signed_body":        {hex.EncodeToString(mac.Sum(nil)) + "." + string(data)},
	}, nil
}

func (s *mobileSession) getJSON(ctx context.Context, endpoint string, target interface{}) error {
	body, err := s.call(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, err, "decode %s", endpoint)
	}
	return nil
}

func (s *mobileSession) UsernameInfo(ctx context.Context, username string) (*normalize.PrivateUser, error) {
	var resp struct {
		User *normalize.PrivateUser `json:"user"`
	}
	if err := s.getJSON(ctx, "users/"+url.PathEscape(username)+"/usernameinfo/", &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errs.New(errs.ErrorTypeNotFound, "user %s not found", username)
	}
	return resp.User, nil
}

func (s *mobileSession) ReelsMedia(ctx context.Context, userIDs ...int64) (map[string]normalize.PrivateReel, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	body, err := s.call(ctx, http.MethodPost, "feed/reels_media/", nil, map[string]interface{}{
		"user_ids":   ids,
		"_uuid":      s.uuid,
		"_csrftoken": s.csrfToken(),
		"source":     "feed_timeline",
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Reels map[string]normalize.PrivateReel `json:"reels"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "decode reels_media")
	}
	return resp.Reels, nil
}

func (s *mobileSession) MediaInfo(ctx context.Context, mediaID int64) (*normalize.PrivateItem, error) {
	var resp struct {
		Items []normalize.PrivateItem `json:"items"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("media/%d/info/", mediaID), &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, errs.New(errs.ErrorTypeNotFound, "media %d not found", mediaID)
	}
	return &resp.Items[0], nil
}

func (s *mobileSession) State() *session.State {
	state := session.NewState(s.deviceID)
	state.Set(settingUsername, session.Text(s.username))
	state.Set(settingUUID, session.Text(s.uuid))
	state.Set(settingPhoneID, session.Text(s.phoneID))
	state.Set(settingAdID, session.Text(s.adID))
	state.Set(settingCreatedTS, session.JSON(json.RawMessage(strconv.FormatInt(s.created, 10))))

	var cookies []storedCookie
	for _, c := range s.cookieList() {
		cookies = append(cookies, storedCookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}
	if data, err := json.Marshal(cookies); err == nil {
		state.Set(settingCookie, session.Binary(data))
	}
	return state
}
