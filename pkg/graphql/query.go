// Package graphql issues the web client's persisted GraphQL query for a post
// and the public web_profile_info lookup.
//
// Requests mimic a desktop Chrome session. When a proxied transport is
// configured it is tried first and the direct transport serves as fallback.
package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/instagram"
	"igresolver/pkg/logger"
	"igresolver/pkg/models"
)

const (
	// DocID identifies the persisted PolarisPostActionLoadPostQuery
	DocID        = "25531498899829322"
	FriendlyName = "PolarisPostActionLoadPostQueryQuery"

	chromeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	bloksVersionID  = "e2004666934296f275a5c6b2c9477b63c80977c7cc0fd4b9867cb37e36092b68"

	// mobileUserAgent is sent to web_profile_info, which only checks for a
	// non-browser agent
	mobileUserAgent = "iphone_ua"
)

// Client queries the web GraphQL endpoint
type Client struct {
	transports []*instagram.Client
	endpoint   string
	profileURL func(username string) string
	logger     logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithEndpoint points the client at a different GraphQL URL
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithProfileURL replaces the web_profile_info URL builder
func WithProfileURL(fn func(username string) string) Option {
	return func(c *Client) { c.profileURL = fn }
}

// New creates a Client. proxied may be nil.
func New(direct, proxied *instagram.Client, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Client{
		endpoint:   instagram.GraphQLURL(),
		profileURL: instagram.WebProfileInfoURL,
		logger:     log.WithField("tier", "graphql"),
	}
	if proxied != nil {
		c.transports = append(c.transports, proxied)
	}
	if direct != nil {
		c.transports = append(c.transports, direct)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryResponse struct {
	Data    json.RawMessage `json:"data"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

// Query runs the post query for shortcode and returns the data field, which
// holds xdt_shortcode_media (or shortcode_media on older revisions).
func (c *Client) Query(ctx context.Context, shortcode string) (json.RawMessage, error) {
	form, err := queryForm(shortcode)
	if err != nil {
		return nil, err
	}

	var lastErr error = errs.New(errs.ErrorTypeUpstreamUnavailable, "no transport configured")
	for _, transport := range c.transports {
		var resp queryResponse
		err := transport.PostForm(ctx, c.endpoint, form, queryHeaders(), &resp)
		if err == nil {
			if isNull(resp.Data) {
				err = errs.New(errs.ErrorTypeExtractionMiss, "graphql returned no data for %s (status %q: %s)", shortcode, resp.Status, resp.Message)
			} else {
				return resp.Data, nil
			}
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.WarnWithFields("graphql query failed", map[string]interface{}{
			"shortcode": shortcode,
			"proxied":   transport.Proxied(),
			"error":     err.Error(),
		})
	}
	return nil, lastErr
}

type profileResponse struct {
	Data struct {
		User *struct {
			ID            models.ID `json:"id"`
			FullName      string    `json:"full_name"`
			Username      string    `json:"username"`
			ProfilePicURL string    `json:"profile_pic_url"`
		} `json:"user"`
	} `json:"data"`
}

// WebProfileInfo looks up a public profile by username
func (c *Client) WebProfileInfo(ctx context.Context, username string) (*models.UserProfile, error) {
	header := http.Header{}
	header.Set("User-Agent", mobileUserAgent)
	header.Set("X-Ig-App-Id", instagram.WebAppID)

	var lastErr error = errs.New(errs.ErrorTypeUpstreamUnavailable, "no transport configured")
	for _, transport := range c.transports {
		var resp profileResponse
		err := transport.GetJSON(ctx, c.profileURL(username), header, &resp)
		if err == nil {
			user := resp.Data.User
			if user == nil {
				err = errs.New(errs.ErrorTypeNotFound, "web_profile_info has no user %s", username)
			} else {
				profile := &models.UserProfile{
					FullName:      user.FullName,
					Username:      user.Username,
					PK:            user.ID,
					ProfilePicURL: user.ProfilePicURL,
				}
				if profile.Username == "" {
					profile.Username = username
				}
				return profile, nil
			}
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.WarnWithFields("web_profile_info failed", map[string]interface{}{
			"username": username,
			"proxied":  transport.Proxied(),
			"error":    err.Error(),
		})
	}
	return nil, lastErr
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

type queryVariables struct {
	Shortcode                string `json:"shortcode"`
	FetchCommentCount        int    `json:"fetch_comment_count"`
	ParentCommentCount       int    `json:"parent_comment_count"`
	ChildCommentCount        int    `json:"child_comment_count"`
	FetchLikeCount           int    `json:"fetch_like_count"`
	FetchTaggedUserCount     *int   `json:"fetch_tagged_user_count"`
	FetchPreviewCommentCount int    `json:"fetch_preview_comment_count"`
	HasThreadedComments      bool   `json:"has_threaded_comments"`
	HoistedCommentID         *int64 `json:"hoisted_comment_id"`
	HoistedReplyID           *int64 `json:"hoisted_reply_id"`
}

func queryForm(shortcode string) (url.Values, error) {
	variables, err := json.Marshal(queryVariables{
		Shortcode:                shortcode,
		FetchCommentCount:        40,
		ParentCommentCount:       24,
		ChildCommentCount:        3,
		FetchLikeCount:           10,
		FetchPreviewCommentCount: 2,
		HasThreadedComments:      true,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "encode graphql variables")
	}

	form := url.Values{}
	for key, value := range staticParams {
		form.Set(key, value)
	}
	form.Set("variables", string(variables))
	return form, nil
}

// staticParams are the session-independent fields a logged-out web client
// posts with every query
var staticParams = map[string]string{
	"av":                       "0",
	"__d":                      "www",
	"__user":                   "0",
	"__a":                      "1",
	"__req":                    "k",
	"__hs":                     "19888.HYP:instagram_web_pkg.2.1..0.0",
	"dpr":                      "2",
	"__ccg":                    "UNKNOWN",
	"__rev":                    "1014227545",
	"__s":                      "trbjos:n8dn55:yev1rm",
	"__hsi":                    "7380500578385702299",
	"__dyn":                    "7xeUjG1mxu1syUbFp40NonwgU7SbzEdF8aUco2qwJw5ux609vCwjE1xoswaq0yE6ucw5Mx62G5UswoEcE7O2l0Fwqo31w9a9wtUd8-U2zxe2GewGw9a362W2K0zK5o4q3y1Sx-0iS2Sq2-azo7u3C2u2J0bS1LwTwKG1pg2fwxyo6O1FwlEcUed6goK2O4UrAwCAxW6Uf9EObzVU8U",
	"__csr":                    "n2Yfg_5hcQAG5mPtfEzil8Wn-DpKGBXhdczlAhrK8uHBAGuKCJeCieLDyExenh68aQAKta8p8ShogKkF5yaUBqCpF9XHmmhoBXyBKbQp0HCwDjqoOepV8Tzk8xeXqAGFTVoCciGaCgvGUtVU-u5Vp801nrEkO0rC58xw41g0VW07ISyie2W1v7F0CwYwwwvEkw8K5cM0VC1dwdi0hCbc094w6MU1xE02lzw",
	"__comet_req":              "7",
	"lsd":                      "AVoPBTXMX0Y",
	"jazoest":                  "2882",
	"__spin_r":                 "1014227545",
	"__spin_b":                 "trunk",
	"__spin_t":                 "1718406700",
	"fb_api_caller_class":      "RelayModern",
	"fb_api_req_friendly_name": FriendlyName,
	"server_timestamps":        "true",
	"doc_id":                   DocID,
}

func queryHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Origin", instagram.BaseURL)
	h.Set("Priority", "u=1, i")
	h.Set("Sec-Ch-Prefers-Color-Scheme", "dark")
	h.Set("Sec-Ch-Ua", `"Google Chrome";v="125", "Chromium";v="125", "Not.A/Brand";v="24"`)
	h.Set("Sec-Ch-Ua-Full-Version-List", `"Google Chrome";v="125.0.6422.142", "Chromium";v="125.0.6422.142", "Not.A/Brand";v="24.0.0.0"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Model", "")
	h.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	h.Set("Sec-Ch-Ua-Platform-Version", `"12.7.4"`)
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("User-Agent", chromeUserAgent)
	h.Set("X-Asbd-Id", "129477")
	h.Set("X-Bloks-Version-Id", bloksVersionID)
	h.Set("X-Fb-Friendly-Name", FriendlyName)
	h.Set("X-Ig-App-Id", instagram.WebAppID)
	return h
}
