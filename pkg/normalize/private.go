package normalize

import (
	errs "igresolver/pkg/errors"
	"igresolver/pkg/models"
)

// PrivateUser is the user object of the private API
type PrivateUser struct {
	PK            models.ID `json:"pk"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	ProfilePicURL string    `json:"profile_pic_url"`
}

// PrivateItem is a media item of the private API (media info, reel items)
type PrivateItem struct {
	ID             string                `json:"id"`
	Code           string                `json:"code"`
	TakenAt        int64                 `json:"taken_at"`
	MediaType      int                   `json:"media_type"`
	User           *PrivateUser          `json:"user"`
	Caption        *PrivateCaption       `json:"caption"`
	ImageVersions2 *models.ImageVersions `json:"image_versions2"`
	VideoVersions  []models.Candidate    `json:"video_versions"`
	CarouselMedia  []PrivateItem         `json:"carousel_media"`
}

// PrivateCaption is null on posts without a caption
type PrivateCaption struct {
	Text string `json:"text"`
}

// PrivateReel is one entry of the reels_media response
type PrivateReel struct {
	ID              models.ID     `json:"id"`
	User            PrivateUser   `json:"user"`
	Items           []PrivateItem `json:"items"`
	ExpiringAt      int64         `json:"expiring_at"`
	LatestReelMedia int64         `json:"latest_reel_media"`
}

// PrivateUserProfile maps a usernameinfo user
func PrivateUserProfile(u PrivateUser) *models.UserProfile {
	return &models.UserProfile{
		FullName:      u.FullName,
		Username:      u.Username,
		PK:            u.PK,
		ProfilePicURL: u.ProfilePicURL,
	}
}

// PrivateMediaItem maps one item. Video items also carry cover images, so
// the video variant wins when both are present.
func PrivateMediaItem(item PrivateItem) (models.MediaItem, error) {
	switch {
	case len(item.VideoVersions) > 0:
		return models.NewVideo(item.VideoVersions...), nil
	case item.ImageVersions2 != nil:
		return models.NewImage(item.ImageVersions2.Candidates...), nil
	default:
		return models.MediaItem{}, errs.New(errs.ErrorTypeUnsupportedMedia, "media %s has neither images nor videos", item.ID)
	}
}

// PrivatePost maps a media info item
func PrivatePost(item PrivateItem) (*models.Post, error) {
	if item.User == nil || item.User.Username == "" {
		return nil, errs.New(errs.ErrorTypeParsing, "media %s has no owner", item.ID)
	}

	sources := item.CarouselMedia
	if len(sources) == 0 {
		sources = []PrivateItem{item}
	}
	media := make([]models.MediaItem, 0, len(sources))
	for _, src := range sources {
		m, err := PrivateMediaItem(src)
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}

	caption := ""
	if item.Caption != nil {
		caption = item.Caption.Text
	}

	pk := item.User.PK
	return &models.Post{
		Code: item.Code,
		User: models.UserRef{
			Username:      item.User.Username,
			PK:            &pk,
			ProfilePicURL: item.User.ProfilePicURL,
		},
		Caption: caption,
		Media:   media,
		TakenAt: item.TakenAt,
	}, nil
}

// PrivateStory maps a reel item
func PrivateStory(item PrivateItem) (*models.Story, error) {
	m, err := PrivateMediaItem(item)
	if err != nil {
		return nil, err
	}
	return models.NewStory(m, item.ID, item.TakenAt), nil
}

// PrivateReelToModel maps a reel. Items that cannot be represented are
// dropped rather than failing the whole reel; skipped, when non-nil, is
// told about each one.
func PrivateReelToModel(reel PrivateReel, skipped func(id string, err error)) *models.Reel {
	pk := reel.User.PK
	out := &models.Reel{
		ID: reel.ID,
		User: models.UserRef{
			Username:      reel.User.Username,
			PK:            &pk,
			ProfilePicURL: reel.User.ProfilePicURL,
		},
		Items:           make([]models.Story, 0, len(reel.Items)),
		ExpiringAt:      reel.ExpiringAt,
		LatestReelMedia: reel.LatestReelMedia,
	}
	for _, item := range reel.Items {
		story, err := PrivateStory(item)
		if err != nil {
			if skipped != nil {
				skipped(item.ID, err)
			}
			continue
		}
		out.Items = append(out.Items, *story)
	}
	return out
}
