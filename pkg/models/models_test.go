package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAcceptsNumberAndString(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 25025320, "b": "25025320", "c": null}`), &v))

	assert.Equal(t, ID(25025320), v.A)
	assert.Equal(t, ID(25025320), v.B)
	assert.Equal(t, ID(0), v.C)

	out, err := json.Marshal(v.B)
	require.NoError(t, err)
	assert.Equal(t, "25025320", string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a": "12x"}`), &v))
}

func TestMediaItemJSONMirrorsPrivateShape(t *testing.T) {
	image := NewImage(Candidate{Width: 1080, Height: 1350, URL: "https://cdn/i.jpg"})
	out, err := json.Marshal(image)
	require.NoError(t, err)
	assert.JSONEq(t, `{"image_versions2":{"candidates":[{"width":1080,"height":1350,"url":"https://cdn/i.jpg"}]}}`, string(out))

	video := NewVideo(Candidate{Width: 720, Height: 1280, URL: "https://cdn/v.mp4"})
	out, err = json.Marshal(video)
	require.NoError(t, err)
	assert.JSONEq(t, `{"video_versions":[{"width":720,"height":1280,"url":"https://cdn/v.mp4"}]}`, string(out))

	assert.Equal(t, MediaTypeImage, image.MediaType())
	assert.Equal(t, MediaTypeVideo, video.MediaType())
	assert.True(t, video.IsVideo())
	assert.False(t, image.IsVideo())
}

func TestStoryFlattensMedia(t *testing.T) {
	story := NewStory(NewVideo(Candidate{Width: 1, Height: 2, URL: "u"}), "3158246346612345678", 1700000000)

	out, err := json.Marshal(story)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"video_versions":[{"width":1,"height":2,"url":"u"}],
		"id":"3158246346612345678",
		"media_type":2,
		"taken_at":1700000000
	}`, string(out))
}

func TestUserRefOmitsAbsentFields(t *testing.T) {
	out, err := json.Marshal(UserRef{Username: "alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"alice"}`, string(out))

	ref := UserProfile{FullName: "Alice", Username: "alice", PK: 42, ProfilePicURL: "p"}.Ref()
	require.NotNil(t, ref.PK)
	assert.Equal(t, ID(42), *ref.PK)
}
