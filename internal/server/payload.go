package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/links"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
)

var errInvalidIdentifier = errors.New("identifier must be a string or number")

// flexibleID accepts a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*f = flexibleID(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return errInvalidIdentifier
	}
	*f = flexibleID(number.String())
	return nil
}

// profileID strips the identity provider prefix.
func (f flexibleID) profileID() string {
	return profiles.ProfileIDFromExternal(string(f))
}

// jsonList accepts a JSON array or a string holding a JSON-encoded array.
type jsonList[T any] []T

func (l *jsonList[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return err
		}
		if strings.TrimSpace(encoded) == "" {
			*l = jsonList[T]{}
			return nil
		}
		trimmed = []byte(encoded)
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	*l = jsonList[T](items)
	return nil
}

type fetchMetadataRequestPayload struct {
	URL string `json:"url"`
}

type createLinkRequestPayload struct {
	UserID      flexibleID       `json:"userID"`
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	MediaType   string           `json:"mediaType"`
	Collection  string           `json:"collection"`
	Tags        jsonList[string] `json:"tags"`
}

type linkResponsePayload struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userID"`
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	MediaType   links.MediaType `json:"mediaType"`
	Collection  string          `json:"collection"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func newLinkResponse(link links.Link) linkResponsePayload {
	return linkResponsePayload{
		ID:          link.ID,
		UserID:      link.UserID,
		URL:         link.URL,
		Title:       link.Title,
		Description: link.Description,
		MediaType:   link.MediaType,
		Collection:  link.Collection,
		Tags:        link.TagList(),
		CreatedAt:   link.CreatedAt,
	}
}

func newLinkResponses(items []links.Link) []linkResponsePayload {
	responses := make([]linkResponsePayload, 0, len(items))
	for _, item := range items {
		responses = append(responses, newLinkResponse(item))
	}
	return responses
}

type createProfileRequestPayload struct {
	ID          flexibleID                `json:"id"`
	Username    string                    `json:"username"`
	Avatar      *string                   `json:"avatar"`
	Bio         string                    `json:"bio"`
	Socials     jsonList[profiles.Social] `json:"socials"`
	Collections jsonList[string]          `json:"collections"`
}

type updateProfileRequestPayload struct {
	ID          flexibleID                 `json:"id"`
	Username    *string                    `json:"username"`
	Avatar      *string                    `json:"avatar"`
	Bio         *string                    `json:"bio"`
	Socials     *jsonList[profiles.Social] `json:"socials"`
	Collection  string                     `json:"collection"`
	Collections jsonList[string]           `json:"collections"`
}

func (p updateProfileRequestPayload) toUpdate() profiles.Update {
	update := profiles.Update{
		ID:       p.ID.profileID(),
		Username: p.Username,
		Avatar:   p.Avatar,
		Bio:      p.Bio,
	}
	if p.Socials != nil {
		socials := []profiles.Social(*p.Socials)
		if socials == nil {
			socials = []profiles.Social{}
		}
		update.Socials = &socials
	}
	if strings.TrimSpace(p.Collection) != "" {
		update.AppendCollections = append(update.AppendCollections, p.Collection)
	}
	update.AppendCollections = append(update.AppendCollections, p.Collections...)
	return update
}

type collectionsRequestPayload struct {
	UserID flexibleID `json:"userId"`
}

type profileResponsePayload struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Avatar      *string           `json:"avatar"`
	Bio         string            `json:"bio"`
	Socials     []profiles.Social `json:"socials"`
	Collections []string          `json:"collections"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// profileDetailPayload is a profile with its derived link list.
type profileDetailPayload struct {
	profileResponsePayload
	Links []linkResponsePayload `json:"links"`
}

func newProfileResponse(profile profiles.Profile) profileResponsePayload {
	return profileResponsePayload{
		ID:          profile.ID,
		Username:    profile.Username,
		Avatar:      profile.Avatar,
		Bio:         profile.Bio,
		Socials:     profile.SocialList(),
		Collections: profile.CollectionNames(),
		CreatedAt:   profile.CreatedAt,
		UpdatedAt:   profile.UpdatedAt,
	}
}

type profileSummaryPayload struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
	Bio      string  `json:"bio"`
}
