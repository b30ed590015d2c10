package profiles

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// MaxBioLength bounds a profile bio in characters.
	MaxBioLength = 250

	maxIdentifierLength = 190
)

// Social is a named link shown on a profile, such as a personal site.
type Social struct {
	Name string `json:"name" validate:"required,max=64"`
	URL  string `json:"url" validate:"required,url"`
}

// Profile is a user's public account record.
type Profile struct {
	ID          string                      `gorm:"column:id;primaryKey;size:190;not null"`
	Username    string                      `gorm:"column:username;size:190;not null;default:''"`
	Avatar      *string                     `gorm:"column:avatar;size:1024"`
	Bio         string                      `gorm:"column:bio;size:250;not null;default:''"`
	Socials     datatypes.JSONSlice[Social] `gorm:"column:socials"`
	Collections datatypes.JSONSlice[string] `gorm:"column:collections"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

// SocialList returns the socials as a non-nil slice.
func (p Profile) SocialList() []Social {
	if p.Socials == nil {
		return []Social{}
	}
	return []Social(p.Socials)
}

// CollectionNames returns the collection names as a non-nil slice in insertion order.
func (p Profile) CollectionNames() []string {
	if p.Collections == nil {
		return []string{}
	}
	return []string(p.Collections)
}

// Summary is the public listing view of a profile.
type Summary struct {
	ID       string
	Username string
	Avatar   *string
	Bio      string
}

// NewProfile carries the fields of a profile created through the API.
type NewProfile struct {
	ID          string   `validate:"max=190"`
	Username    string   `validate:"max=190"`
	Avatar      *string  `validate:"omitempty,max=1024"`
	Bio         string   `validate:"max=250"`
	Socials     []Social `validate:"dive"`
	Collections []string `validate:"dive,required,max=190"`
}

// Update describes a partial profile edit. Nil fields are left untouched and
// AppendCollections is appended in order without removing existing names.
type Update struct {
	ID                string    `validate:"required,max=190"`
	Username          *string   `validate:"omitempty,max=190"`
	Avatar            *string   `validate:"omitempty,max=1024"`
	Bio               *string   `validate:"omitempty,max=250"`
	Socials           *[]Social `validate:"-"`
	AppendCollections []string  `validate:"dive,required,max=190"`
}

// ProvisionRequest is the identity provider's view of a newly created user.
type ProvisionRequest struct {
	ExternalID string
	Username   string
	ImageURL   string
}
