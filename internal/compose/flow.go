// Package compose drives a single link through URL entry, metadata autofill,
// editing and submission.
package compose

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/links"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/metadata"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
)

// State is a step of the composition flow.
type State string

const (
	StateIdle             State = "idle"
	StateFetchingMetadata State = "fetching_metadata"
	StateMetadataReady    State = "metadata_ready"
	StateMetadataFailed   State = "metadata_failed"
	StateEditing          State = "editing"
	StateSubmitting       State = "submitting"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
)

const (
	// MetadataFailedMessage is shown when autofill could not fetch the page.
	MetadataFailedMessage = "Could not fetch details for this URL. Fill them in manually."
	// SubmitFailedMessage is shown when the link could not be saved.
	SubmitFailedMessage = "Failed to create link. Please try again."

	tagSeparator = ","
)

var (
	ErrEmptyURL            = errors.New("compose: url is empty")
	ErrInvalidState        = errors.New("compose: operation not allowed in current state")
	ErrDescriptionTooLong  = errors.New("compose: description too long")
	ErrUnknownCollection   = errors.New("compose: collection not owned by user")
	ErrNotReady            = errors.New("compose: draft is not ready to submit")
	ErrSubmitFailed        = errors.New("compose: submit failed")
	errMissingExtractor    = errors.New("compose: metadata extractor required")
	errMissingCollections  = errors.New("compose: collection source required")
	errMissingLinkCreator  = errors.New("compose: link creator required")
	errMissingExternalUser = errors.New("compose: user id required")
)

// MetadataExtractor fetches page metadata for autofill.
type MetadataExtractor interface {
	Extract(ctx context.Context, rawURL string) (metadata.Metadata, error)
}

// CollectionSource lists the collection names owned by a user.
type CollectionSource interface {
	Collections(ctx context.Context, userID string) ([]string, error)
}

// LinkCreator persists a finished draft.
type LinkCreator interface {
	Create(ctx context.Context, input links.NewLink) (links.Link, error)
}

// FlowConfig describes the collaborators of a Flow.
type FlowConfig struct {
	Extractor    MetadataExtractor
	Collections  CollectionSource
	Links        LinkCreator
	Logger       *zap.Logger
	OnTransition func(from, to State)
}

// Draft holds the editable fields of the link being composed.
type Draft struct {
	URL         string
	Title       string
	Description string
	MediaType   links.MediaType
	Collection  string
	Tags        []string
}

// Flow is the state machine for composing one link at a time. A Flow is not
// safe for concurrent use.
type Flow struct {
	extractor    MetadataExtractor
	collections  CollectionSource
	links        LinkCreator
	logger       *zap.Logger
	onTransition func(from, to State)

	state     State
	userID    string
	owned     []string
	draft     Draft
	message   string
	lastSaved links.Link
}

// NewFlow constructs an idle Flow.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.Extractor == nil {
		return nil, errMissingExtractor
	}
	if cfg.Collections == nil {
		return nil, errMissingCollections
	}
	if cfg.Links == nil {
		return nil, errMissingLinkCreator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		extractor:    cfg.Extractor,
		collections:  cfg.Collections,
		links:        cfg.Links,
		logger:       logger,
		onTransition: cfg.OnTransition,
		state:        StateIdle,
	}, nil
}

// Start binds the flow to a user and loads the collection names a link may be filed under.
func (f *Flow) Start(ctx context.Context, externalUserID string) error {
	userID := profiles.ProfileIDFromExternal(externalUserID)
	if userID == "" {
		return errMissingExternalUser
	}
	names, err := f.collections.Collections(ctx, userID)
	if err != nil {
		f.logger.Warn("collections unavailable", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("compose: load collections: %w", err)
	}
	f.userID = userID
	f.owned = slices.Clone(names)
	f.draft = Draft{}
	f.message = ""
	f.transition(StateIdle)
	return nil
}

// EnterURL records the URL and autofills the draft from the page metadata.
// A failed fetch leaves the fields empty and the flow still editable.
func (f *Flow) EnterURL(ctx context.Context, raw string) error {
	if f.userID == "" {
		return ErrInvalidState
	}
	if f.state == StateFetchingMetadata || f.state == StateSubmitting {
		return ErrInvalidState
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ErrEmptyURL
	}

	f.draft.URL = trimmed
	f.draft.Title = ""
	f.draft.Description = ""
	f.draft.MediaType = ""
	f.message = ""
	f.transition(StateFetchingMetadata)

	page, err := f.extractor.Extract(ctx, trimmed)
	if err != nil {
		f.logger.Info("metadata autofill failed", zap.String("url", trimmed), zap.Error(err))
		f.message = MetadataFailedMessage
		f.transition(StateMetadataFailed)
		f.transition(StateEditing)
		return nil
	}

	f.draft.Title = page.Title
	f.draft.Description = truncate(page.Description, links.MaxDescriptionLength)
	f.draft.MediaType = links.MediaTypeFromOpenGraph(page.MediaType)
	f.transition(StateMetadataReady)
	f.transition(StateEditing)
	return nil
}

// SetTitle replaces the draft title.
func (f *Flow) SetTitle(title string) error {
	if err := f.beginEdit(); err != nil {
		return err
	}
	f.draft.Title = title
	return nil
}

// SetDescription replaces the description unless it exceeds the length limit,
// in which case the previous value is kept.
func (f *Flow) SetDescription(description string) error {
	if err := f.beginEdit(); err != nil {
		return err
	}
	if utf8.RuneCountInString(description) > links.MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	f.draft.Description = description
	return nil
}

// SetMediaType selects one of the enumerated media types.
func (f *Flow) SetMediaType(raw string) error {
	if err := f.beginEdit(); err != nil {
		return err
	}
	mediaType, err := links.ParseMediaType(raw)
	if err != nil {
		return err
	}
	f.draft.MediaType = mediaType
	return nil
}

// SelectCollection files the draft under one of the user's collections. An
// empty name clears the selection.
func (f *Flow) SelectCollection(name string) error {
	if err := f.beginEdit(); err != nil {
		return err
	}
	if name != "" && !slices.Contains(f.owned, name) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	f.draft.Collection = name
	return nil
}

// SetTags splits raw on commas and keeps the first entries up to the tag limit.
// Entries are kept verbatim.
func (f *Flow) SetTags(raw string) error {
	if err := f.beginEdit(); err != nil {
		return err
	}
	f.draft.Tags = ParseTags(raw)
	return nil
}

// ParseTags splits comma-separated input into at most links.MaxTags tags.
func ParseTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, tagSeparator)
	if len(parts) > links.MaxTags {
		parts = parts[:links.MaxTags]
	}
	return parts
}

// CanSubmit reports whether the draft has a valid URL, a title and a media type.
func (f *Flow) CanSubmit() bool {
	if f.state != StateEditing && f.state != StateFailed {
		return false
	}
	return links.IsValidURL(f.draft.URL) &&
		strings.TrimSpace(f.draft.Title) != "" &&
		f.draft.MediaType != ""
}

// Submit stores the draft as a link owned by the started user.
func (f *Flow) Submit(ctx context.Context) (links.Link, error) {
	if !f.CanSubmit() {
		return links.Link{}, ErrNotReady
	}
	f.transition(StateSubmitting)

	created, err := f.links.Create(ctx, links.NewLink{
		UserID:      f.userID,
		URL:         f.draft.URL,
		Title:       f.draft.Title,
		Description: f.draft.Description,
		MediaType:   f.draft.MediaType,
		Collection:  f.draft.Collection,
		Tags:        slices.Clone(f.draft.Tags),
	})
	if err != nil {
		f.logger.Error("link submission failed", zap.String("user_id", f.userID), zap.Error(err))
		f.message = SubmitFailedMessage
		f.transition(StateFailed)
		return links.Link{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	f.lastSaved = created
	f.draft = Draft{}
	f.message = ""
	f.transition(StateSucceeded)
	return created, nil
}

// State returns the current step.
func (f *Flow) State() State {
	return f.state
}

// UserID returns the profile id the flow is bound to.
func (f *Flow) UserID() string {
	return f.userID
}

// Draft returns a copy of the fields being edited.
func (f *Flow) Draft() Draft {
	draft := f.draft
	draft.Tags = slices.Clone(f.draft.Tags)
	return draft
}

// Collections returns the collection names loaded by Start.
func (f *Flow) Collections() []string {
	return slices.Clone(f.owned)
}

// Message returns the user-visible notice of the last failure, if any.
func (f *Flow) Message() string {
	return f.message
}

// LastSaved returns the link stored by the most recent successful Submit.
func (f *Flow) LastSaved() links.Link {
	return f.lastSaved
}

func (f *Flow) beginEdit() error {
	if f.state != StateEditing && f.state != StateFailed {
		return ErrInvalidState
	}
	if f.state == StateFailed {
		f.transition(StateEditing)
	}
	return nil
}

func (f *Flow) transition(next State) {
	previous := f.state
	f.state = next
	f.logger.Debug("compose state change",
		zap.String("from", string(previous)),
		zap.String("to", string(next)))
	if f.onTransition != nil {
		f.onTransition(previous, next)
	}
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
