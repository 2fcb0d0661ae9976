package instagram

import (
	"fmt"
	"net/http"
	"net/url"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// MobileBaseURL serves the private and web profile APIs
	MobileBaseURL = "https://i.instagram.com"

	// GraphQLEndpoint receives the web client's persisted queries
	GraphQLEndpoint = "/graphql/query/"

	// WebProfileInfoEndpoint returns a public profile by username
	WebProfileInfoEndpoint = "/api/v1/users/web_profile_info/"

	// WebAppID is the application id the web client sends
	WebAppID = "936619743392459"

	DesktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.60 Safari/537.36"
)

// PostEmbedURL is the captioned embed page of a post
func PostEmbedURL(shortcode string) string {
	return fmt.Sprintf("%s/p/%s/embed/captioned", BaseURL, url.PathEscape(shortcode))
}

// UserEmbedURL is the embed page of a profile
func UserEmbedURL(username string) string {
	return fmt.Sprintf("%s/%s/embed", BaseURL, url.PathEscape(username))
}

// GraphQLURL is the web GraphQL endpoint
func GraphQLURL() string {
	return BaseURL + GraphQLEndpoint
}

// WebProfileInfoURL constructs the URL for fetching a user's profile
func WebProfileInfoURL(username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s%s?%s", MobileBaseURL, WebProfileInfoEndpoint, params.Encode())
}

// EmbedPageHeaders are the headers a browser sends when navigating to an
// embed page
func EmbedPageHeaders() http.Header {
	h := http.Header{}
	h.Set("Authority", "www.instagram.com")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Referer", BaseURL+"/")
	h.Set("User-Agent", DesktopUserAgent)
	h.Set("Viewport-Width", "1280")
	return h
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}
