// Package models holds the normalized content model served by igresolver.
// The JSON form of media mirrors the private mobile API so that every tier
// produces byte-compatible output.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Media type codes used by Story.MediaType
const (
	MediaTypeImage = 1
	MediaTypeVideo = 2
)

// ID is a numeric identifier. Upstream shapes send it either as a JSON number
// or as a quoted decimal string; it is always written as a number.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(v)
	return nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Candidate is one rendition of a media resource
type Candidate struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// ImageVersions wraps the image candidates, as in image_versions2
type ImageVersions struct {
	Candidates []Candidate `json:"candidates"`
}

// MediaItem is exactly one of an image or a video
type MediaItem struct {
	Image *ImageVersions `json:"image_versions2,omitempty"`
	Video []Candidate    `json:"video_versions,omitempty"`
}

// NewImage builds an image item
func NewImage(candidates ...Candidate) MediaItem {
	return MediaItem{Image: &ImageVersions{Candidates: candidates}}
}

// NewVideo builds a video item
func NewVideo(candidates ...Candidate) MediaItem {
	return MediaItem{Video: candidates}
}

// IsVideo reports whether the video variant is populated
func (m MediaItem) IsVideo() bool {
	return m.Image == nil && m.Video != nil
}

// MediaType derives the story media type from the populated variant
func (m MediaItem) MediaType() int {
	if m.Image != nil {
		return MediaTypeImage
	}
	return MediaTypeVideo
}

// UserRef identifies the owner of a post
type UserRef struct {
	Username      string `json:"username"`
	PK            *ID    `json:"pk,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`
}

// UserProfile is the public profile summary
type UserProfile struct {
	FullName      string `json:"full_name"`
	Username      string `json:"username"`
	PK            ID     `json:"pk"`
	ProfilePicURL string `json:"profile_pic_url"`
}

// Ref returns the profile as a post owner reference
func (u UserProfile) Ref() UserRef {
	pk := u.PK
	return UserRef{Username: u.Username, PK: &pk, ProfilePicURL: u.ProfilePicURL}
}

// Post is a feed post. Media is never empty; a carousel keeps source order.
type Post struct {
	Code    string      `json:"code"`
	User    UserRef     `json:"user"`
	Caption string      `json:"caption"`
	Media   []MediaItem `json:"media"`
	TakenAt int64       `json:"taken_at"`
}

// Story is a single story item: one media item plus its identity
type Story struct {
	MediaItem
	ID        string `json:"id"`
	MediaType int    `json:"media_type"`
	TakenAt   int64  `json:"taken_at"`
}

// NewStory merges a media item with its metadata, deriving the media type
func NewStory(item MediaItem, id string, takenAt int64) *Story {
	return &Story{
		MediaItem: item,
		ID:        id,
		MediaType: item.MediaType(),
		TakenAt:   takenAt,
	}
}

// Reel is the set of live stories of one user
type Reel struct {
	ID              ID      `json:"id"`
	User            UserRef `json:"user"`
	Items           []Story `json:"items"`
	ExpiringAt      int64   `json:"expiring_at"`
	LatestReelMedia int64   `json:"latest_reel_media"`
}
