// Package embed resolves content from Instagram's public embed pages.
//
// A post is extracted with three strategies, first success wins: the inline
// additionalDataLoaded blob, the TimeSliceImpl bootstrap payload, and finally
// the web GraphQL query. Every failure here is a miss; the resolver moves on
// to the next tier.
package embed

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/graphql"
	"igresolver/pkg/instagram"
	"igresolver/pkg/logger"
	"igresolver/pkg/models"
	"igresolver/pkg/normalize"
	"igresolver/pkg/shortcode"
)

// UserResolver looks up profiles for post owner enrichment
type UserResolver interface {
	GetUser(ctx context.Context, username string) (*models.UserProfile, error)
}

// Scraper is the embed page tier
type Scraper struct {
	client  *instagram.Client
	gql     *graphql.Client
	users   UserResolver
	postURL func(shortcode string) string
	userURL func(username string) string
	logger  logger.Logger
}

// Option customizes a Scraper
type Option func(*Scraper)

// WithPageURLs replaces the embed page URL builders
func WithPageURLs(post, user func(string) string) Option {
	return func(s *Scraper) {
		s.postURL = post
		s.userURL = user
	}
}

// New creates the embed tier. gql may be nil, which disables the GraphQL
// strategy and the web_profile_info lookup.
func New(client *instagram.Client, gql *graphql.Client, log logger.Logger, opts ...Option) *Scraper {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Scraper{
		client:  client,
		gql:     gql,
		postURL: instagram.PostEmbedURL,
		userURL: instagram.UserEmbedURL,
		logger:  log.WithField("tier", "embed"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetUserResolver sets the resolver used to enrich post owners. Without one
// the scraper's own GetUser is used.
func (s *Scraper) SetUserResolver(users UserResolver) {
	s.users = users
}

// GetPost resolves a post by shortcode
func (s *Scraper) GetPost(ctx context.Context, code string) (*models.Post, error) {
	log := s.logger.WithFields(map[string]interface{}{"op": "get_post", "shortcode": code})
	log.Debug("resolving post")

	data, err := s.postData(ctx, code)
	if err != nil {
		log.WithError(err).Warn("post extraction failed")
		return nil, err
	}

	post, err := normalize.Post(data)
	if err != nil {
		log.WithError(err).Warn("post normalization failed")
		return nil, err
	}

	users := s.users
	if users == nil {
		users = s
	}
	profile, err := users.GetUser(ctx, post.User.Username)
	if err != nil {
		log.WithError(err).Warn("post owner enrichment failed")
		return nil, err
	}
	post.User = profile.Ref()

	return post, nil
}

// GetStory resolves a single story from its numeric id. Story media is
// served by the post machinery once the id is turned into a shortcode.
func (s *Scraper) GetStory(ctx context.Context, username, storyID string) (*models.Story, error) {
	log := s.logger.WithFields(map[string]interface{}{"op": "get_story", "username": username, "story_id": storyID})
	log.Debug("resolving story")

	id, err := shortcode.ParseID(storyID)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, errs.New(errs.ErrorTypeExtractionMiss, "story id %q has no shortcode", storyID)
	}

	data, err := s.postData(ctx, shortcode.FromID(id))
	if err != nil {
		log.WithError(err).Warn("story extraction failed")
		return nil, err
	}

	story, err := normalize.Story(data)
	if err != nil {
		log.WithError(err).Warn("story normalization failed")
		return nil, err
	}
	return story, nil
}

// GetStories is not served by embed pages
func (s *Scraper) GetStories(ctx context.Context, username string) (*models.Reel, error) {
	return nil, errs.New(errs.ErrorTypeExtractionMiss, "stories are not available from embed pages")
}

type userContext struct {
	Context *struct {
		FullName     string    `json:"full_name"`
		Username     string    `json:"username"`
		OwnerID      models.ID `json:"owner_id"`
		GraphQLMedia []struct {
			ShortcodeMedia struct {
				Owner struct {
					ProfilePicURL string `json:"profile_pic_url"`
				} `json:"owner"`
			} `json:"shortcode_media"`
		} `json:"graphql_media"`
	} `json:"context"`
}

// GetUser resolves a profile from the user embed page, falling back to
// web_profile_info
func (s *Scraper) GetUser(ctx context.Context, username string) (*models.UserProfile, error) {
	log := s.logger.WithFields(map[string]interface{}{"op": "get_user", "username": username})
	log.Debug("resolving user")

	if doc, err := s.fetch(ctx, s.userURL(username)); err != nil {
		log.WithError(err).Debug("user embed page unavailable")
	} else {
		for _, payload := range timeSliceStrings(doc, "full_name") {
			var uc userContext
			if err := json.Unmarshal([]byte(payload), &uc); err != nil || uc.Context == nil || uc.Context.Username == "" {
				continue
			}
			profile := &models.UserProfile{
				FullName: uc.Context.FullName,
				Username: uc.Context.Username,
				PK:       uc.Context.OwnerID,
			}
			if len(uc.Context.GraphQLMedia) > 0 {
				profile.ProfilePicURL = uc.Context.GraphQLMedia[0].ShortcodeMedia.Owner.ProfilePicURL
			}
			return profile, nil
		}
	}

	if s.gql == nil {
		return nil, errs.New(errs.ErrorTypeExtractionMiss, "cannot get user %s", username)
	}
	profile, err := s.gql.WebProfileInfo(ctx, username)
	if err != nil {
		log.WithError(err).Warn("user extraction failed")
		return nil, errs.Wrap(errs.ErrorTypeExtractionMiss, err, "cannot get user %s", username)
	}
	return profile, nil
}

// postData runs the three post strategies in order and returns the first
// payload carrying (xdt_)shortcode_media
func (s *Scraper) postData(ctx context.Context, code string) (json.RawMessage, error) {
	log := s.logger.WithField("shortcode", code)

	doc, err := s.fetch(ctx, s.postURL(code))
	if err != nil {
		log.WithError(err).Debug("post embed page unavailable")
	} else {
		if data, ok := additionalData(doc); ok {
			log.Debug("post found in additionalDataLoaded")
			return data, nil
		}
		if data, ok := timeSliceGQLData(doc); ok {
			log.Debug("post found in TimeSliceImpl payload")
			return data, nil
		}
	}

	if s.gql == nil {
		return nil, errs.New(errs.ErrorTypeExtractionMiss, "no embed strategy matched %s", code)
	}
	data, err := s.gql.Query(ctx, code)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeExtractionMiss, err, "no embed strategy matched %s", code)
	}
	log.Debug("post found through graphql")
	return data, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := s.client.GetText(ctx, pageURL, instagram.EmbedPageHeaders())
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "parse embed page")
	}
	return doc, nil
}
