package links

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// MediaType classifies the content behind a saved link.
type MediaType string

const (
	MediaTypeArticle MediaType = "ARTICLE"
	MediaTypeVideo   MediaType = "VIDEO"
	MediaTypePodcast MediaType = "PODCAST"
	MediaTypeImage   MediaType = "IMAGE"
	MediaTypeWebsite MediaType = "WEBSITE"
	MediaTypeOther   MediaType = "OTHER"
)

const (
	// MaxDescriptionLength bounds a link description in characters.
	MaxDescriptionLength = 150
	// MaxTags bounds the number of tags attached to a link.
	MaxTags = 3

	maxIdentifierLength = 190
)

// ErrInvalidMediaType indicates a value outside the media type enumeration.
var ErrInvalidMediaType = errors.New("links: invalid media type")

// MediaTypes lists the supported media types in display order.
func MediaTypes() []MediaType {
	return []MediaType{
		MediaTypeArticle,
		MediaTypeVideo,
		MediaTypePodcast,
		MediaTypeImage,
		MediaTypeWebsite,
		MediaTypeOther,
	}
}

// ParseMediaType accepts any casing of an enumerated media type.
func ParseMediaType(raw string) (MediaType, error) {
	candidate := MediaType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range MediaTypes() {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMediaType, raw)
}

// MediaTypeFromOpenGraph maps an og:type value such as "video.movie" onto the enumeration.
func MediaTypeFromOpenGraph(ogType string) MediaType {
	normalized := strings.ToLower(strings.TrimSpace(ogType))
	if normalized == "" {
		return MediaTypeWebsite
	}
	family, _, _ := strings.Cut(normalized, ".")
	switch family {
	case "article", "blog", "book":
		return MediaTypeArticle
	case "video":
		return MediaTypeVideo
	case "music", "podcast", "audio":
		return MediaTypePodcast
	case "image", "photo":
		return MediaTypeImage
	case "website", "profile":
		return MediaTypeWebsite
	}
	if parsed, err := ParseMediaType(normalized); err == nil {
		return parsed
	}
	return MediaTypeOther
}

// String returns the stored representation.
func (m MediaType) String() string {
	return string(m)
}

// Link is a single saved bookmark.
type Link struct {
	ID          string                      `json:"id" gorm:"column:id;primaryKey;size:64;not null"`
	UserID      string                      `json:"userID" gorm:"column:user_id;size:190;not null;index:idx_links_user_created,priority:1"`
	URL         string                      `json:"url" gorm:"column:url;type:text;not null"`
	Title       string                      `json:"title" gorm:"column:title;type:text;not null"`
	Description string                      `json:"description" gorm:"column:description;type:text;not null;default:''"`
	MediaType   MediaType                   `json:"mediaType" gorm:"column:media_type;size:16;not null"`
	Collection  string                      `json:"collection" gorm:"column:collection;size:190;not null;default:''"`
	Tags        datatypes.JSONSlice[string] `json:"tags" gorm:"column:tags"`
	CreatedAt   time.Time                   `json:"createdAt" gorm:"column:created_at;not null;index:idx_links_user_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Link) TableName() string {
	return "links"
}

// TagList returns the link tags as a non-nil slice.
func (l Link) TagList() []string {
	if l.Tags == nil {
		return []string{}
	}
	return []string(l.Tags)
}

// NewLink carries the caller-supplied fields of a link about to be created.
type NewLink struct {
	UserID      string    `validate:"required,max=190"`
	URL         string    `validate:"required,url"`
	Title       string    `validate:"notblank"`
	Description string    `validate:"max=150"`
	MediaType   MediaType `validate:"required,oneof=ARTICLE VIDEO PODCAST IMAGE WEBSITE OTHER"`
	Collection  string    `validate:"max=190"`
	Tags        []string  `validate:"max=3"`
}
