// Package normalize turns the upstream response shapes into the models
// package types.
//
// The web shapes (the embed page's additionalDataLoaded blob, the
// TimeSliceImpl gql_data payload and the GraphQL query data) all carry a
// shortcode_media or xdt_shortcode_media object and are handled by Post and
// Story. The private mobile API shape is handled by PrivatePost and friends.
package normalize

import (
	"encoding/json"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/models"
)

type envelope struct {
	ShortcodeMedia    *rawMedia `json:"shortcode_media"`
	XDTShortcodeMedia *rawMedia `json:"xdt_shortcode_media"`
}

type rawMedia struct {
	Node             *rawMedia `json:"node"`
	Typename         string    `json:"__typename"`
	ID               models.ID `json:"id"`
	Shortcode        string    `json:"shortcode"`
	TakenAtTimestamp int64     `json:"taken_at_timestamp"`
	Owner            *rawOwner `json:"owner"`

	EdgeMediaToCaption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`

	EdgeSidecarToChildren *struct {
		Edges []rawMedia `json:"edges"`
	} `json:"edge_sidecar_to_children"`

	DisplayResources []struct {
		ConfigWidth  int    `json:"config_width"`
		ConfigHeight int    `json:"config_height"`
		Src          string `json:"src"`
	} `json:"display_resources"`

	Dimensions *struct {
		Height int `json:"height"`
		Width  int `json:"width"`
	} `json:"dimensions"`
	VideoURL string `json:"video_url"`
}

type rawOwner struct {
	Username      string     `json:"username"`
	ID            *models.ID `json:"id"`
	ProfilePicURL *string    `json:"profile_pic_url"`
}

// unwrap returns the node a sidecar edge wraps, or the media itself
func (m *rawMedia) unwrap() *rawMedia {
	if m.Node != nil {
		return m.Node
	}
	return m
}

func decodeEnvelope(data json.RawMessage) (*rawMedia, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "decode media envelope")
	}
	switch {
	case env.ShortcodeMedia != nil:
		return env.ShortcodeMedia, nil
	case env.XDTShortcodeMedia != nil:
		return env.XDTShortcodeMedia, nil
	default:
		return nil, errs.New(errs.ErrorTypeParsing, "response has neither shortcode_media nor xdt_shortcode_media")
	}
}

// Post normalizes a web shape into a Post
func Post(data json.RawMessage) (*models.Post, error) {
	media, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	if media.Shortcode == "" {
		return nil, errs.New(errs.ErrorTypeParsing, "media has no shortcode")
	}
	user, err := userRef(media.Owner)
	if err != nil {
		return nil, err
	}
	items, err := mediaItems(media)
	if err != nil {
		return nil, err
	}

	caption := ""
	if edges := media.EdgeMediaToCaption.Edges; len(edges) > 0 {
		caption = edges[0].Node.Text
	}

	return &models.Post{
		Code:    media.Shortcode,
		User:    user,
		Caption: caption,
		Media:   items,
		TakenAt: media.TakenAtTimestamp,
	}, nil
}

// Story normalizes a web shape into a single Story, taking the first media item
func Story(data json.RawMessage) (*models.Story, error) {
	media, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	items, err := mediaItems(media)
	if err != nil {
		return nil, err
	}
	return models.NewStory(items[0], media.ID.String(), media.TakenAtTimestamp), nil
}

func userRef(owner *rawOwner) (models.UserRef, error) {
	if owner == nil || owner.Username == "" {
		return models.UserRef{}, errs.New(errs.ErrorTypeParsing, "media has no owner username")
	}
	ref := models.UserRef{Username: owner.Username, PK: owner.ID}
	if owner.ProfilePicURL != nil {
		ref.ProfilePicURL = *owner.ProfilePicURL
	}
	return ref, nil
}

func mediaItems(media *rawMedia) ([]models.MediaItem, error) {
	var children []*rawMedia
	if media.EdgeSidecarToChildren != nil {
		for i := range media.EdgeSidecarToChildren.Edges {
			children = append(children, &media.EdgeSidecarToChildren.Edges[i])
		}
	} else {
		children = []*rawMedia{media}
	}

	if len(children) == 0 {
		return nil, errs.New(errs.ErrorTypeParsing, "media %s has no children", media.Shortcode)
	}

	items := make([]models.MediaItem, 0, len(children))
	for _, child := range children {
		item, err := mediaItem(child.unwrap())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func mediaItem(child *rawMedia) (models.MediaItem, error) {
	switch child.Typename {
	case "GraphImage", "StoryImage", "XDTGraphImage":
		candidates := make([]models.Candidate, 0, len(child.DisplayResources))
		for _, r := range child.DisplayResources {
			candidates = append(candidates, models.Candidate{
				Width:  r.ConfigWidth,
				Height: r.ConfigHeight,
				URL:    r.Src,
			})
		}
		return models.NewImage(candidates...), nil

	case "GraphVideo", "XDTGraphVideo":
		if child.Dimensions == nil || child.VideoURL == "" {
			return models.MediaItem{}, errs.New(errs.ErrorTypeParsing, "video %s lacks dimensions or url", child.Shortcode)
		}
		// Width and height are taken crosswise. Clients depend on it.
		return models.NewVideo(models.Candidate{
			Width:  child.Dimensions.Height,
			Height: child.Dimensions.Width,
			URL:    child.VideoURL,
		}), nil

	case "StoryVideo", "GraphStoryVideo", "XDTStoryVideo":
		return models.MediaItem{}, errs.New(errs.ErrorTypeUnsupportedMedia, "%s type not supported", child.Typename)

	default:
		return models.MediaItem{}, errs.New(errs.ErrorTypeUnsupportedMedia, "unknown child type %q", child.Typename)
	}
}
