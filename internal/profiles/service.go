package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound indicates the requested profile does not exist.
	ErrNotFound = errors.New("profiles: not found")
	// ErrProfileExists indicates a profile with the same id was already stored.
	ErrProfileExists = errors.New("profiles: profile already exists")
	// ErrInvalidProfile indicates the supplied fields failed validation.
	ErrInvalidProfile = errors.New("profiles: invalid profile")
	// ErrInvalidIdentity indicates the identity event did not carry a usable user id.
	ErrInvalidIdentity = errors.New("profiles: invalid identity")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "profiles.service.new"
	opGet         = "profiles.get"
	opList        = "profiles.list"
	opCreate      = "profiles.create"
	opUpdate      = "profiles.update"
	opCollections = "profiles.collections"
	opProvision   = "profiles.provision"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for profiles created without one.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for profile storage.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages profile records.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Get returns the profile stored under profileID.
func (s *Service) Get(ctx context.Context, profileID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("id = ?", normalize(profileID)).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, newServiceError(opGet, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("profile_id", profileID))
		return Profile{}, newServiceError(opGet, "query_failed", err)
	}
	return profile, nil
}

// List returns the public summary of every profile.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	var stored []Profile
	if err := s.db.WithContext(ctx).
		Select("id", "username", "avatar", "bio").
		Order("created_at ASC").
		Find(&stored).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	summaries := make([]Summary, 0, len(stored))
	for _, profile := range stored {
		summaries = append(summaries, Summary{
			ID:       profile.ID,
			Username: profile.Username,
			Avatar:   profile.Avatar,
			Bio:      profile.Bio,
		})
	}
	return summaries, nil
}

// Create stores a new profile, issuing an id when none is supplied.
func (s *Service) Create(ctx context.Context, input NewProfile) (Profile, error) {
	if err := input.validate(); err != nil {
		return Profile{}, newServiceError(opCreate, "validation_failed", err)
	}

	profileID := ProfileIDFromExternal(input.ID)
	if profileID == "" {
		issued, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreate, "id_generation_failed", err)
			return Profile{}, newServiceError(opCreate, "id_generation_failed", err)
		}
		profileID = issued
	}

	profile := Profile{
		ID:          profileID,
		Username:    input.Username,
		Avatar:      nonEmpty(input.Avatar),
		Bio:         input.Bio,
		Socials:     datatypes.JSONSlice[Social](append([]Social{}, input.Socials...)),
		Collections: datatypes.JSONSlice[string](append([]string{}, input.Collections...)),
	}
	if err := s.insert(ctx, opCreate, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Update applies a partial edit inside a transaction so concurrent collection
// appends do not overwrite each other.
func (s *Service) Update(ctx context.Context, update Update) (Profile, error) {
	if err := update.validate(); err != nil {
		return Profile{}, newServiceError(opUpdate, "validation_failed", err)
	}
	profileID := normalize(update.ID)

	var updated Profile
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", profileID).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdate, "not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(opUpdate, "profile_select_failed", err, zap.String("profile_id", profileID))
			return newServiceError(opUpdate, "profile_select_failed", err)
		}

		if update.Username != nil {
			existing.Username = *update.Username
		}
		if update.Avatar != nil {
			existing.Avatar = nonEmpty(update.Avatar)
		}
		if update.Bio != nil {
			existing.Bio = *update.Bio
		}
		if update.Socials != nil {
			existing.Socials = datatypes.JSONSlice[Social](append([]Social{}, (*update.Socials)...))
		}
		if len(update.AppendCollections) > 0 {
			collections := append(existing.CollectionNames(), update.AppendCollections...)
			existing.Collections = datatypes.JSONSlice[string](collections)
		}
		existing.UpdatedAt = s.now().UTC()

		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opUpdate, "profile_save_failed", err, zap.String("profile_id", profileID))
			return newServiceError(opUpdate, "profile_save_failed", err)
		}
		updated = existing
		return nil
	})
	if txErr != nil {
		return Profile{}, txErr
	}
	return updated, nil
}

// AddCollection appends name to the profile's collections. Duplicates are kept.
func (s *Service) AddCollection(ctx context.Context, profileID, name string) (Profile, error) {
	return s.Update(ctx, Update{ID: profileID, AppendCollections: []string{name}})
}

// Collections returns the collection names of the user, accepting either a
// profile id or an identity provider user id.
func (s *Service) Collections(ctx context.Context, userID string) ([]string, error) {
	profileID := ProfileIDFromExternal(userID)
	var profile Profile
	err := s.db.WithContext(ctx).
		Select("id", "collections").
		Where("id = ?", profileID).
		Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opCollections, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opCollections, "query_failed", err, zap.String("profile_id", profileID))
		return nil, newServiceError(opCollections, "query_failed", err)
	}
	return profile.CollectionNames(), nil
}

// Provision creates the profile for a newly registered identity. When the
// profile already exists it is returned together with ErrProfileExists.
func (s *Service) Provision(ctx context.Context, request ProvisionRequest) (Profile, error) {
	profileID := ProfileIDFromExternal(request.ExternalID)
	if profileID == "" {
		return Profile{}, newServiceError(opProvision, "invalid_identity", ErrInvalidIdentity)
	}

	profile := Profile{
		ID:          profileID,
		Username:    normalize(request.Username),
		Avatar:      nonEmpty(&request.ImageURL),
		Bio:         "",
		Socials:     datatypes.JSONSlice[Social]{},
		Collections: datatypes.JSONSlice[string]{},
	}
	err := s.insert(ctx, opProvision, &profile)
	if errors.Is(err, ErrProfileExists) {
		existing, getErr := s.Get(ctx, profileID)
		if getErr != nil {
			return Profile{}, getErr
		}
		s.loggerOrDefault().Info("profile already provisioned", zap.String("profile_id", profileID))
		return existing, err
	}
	if err != nil {
		return Profile{}, err
	}
	s.loggerOrDefault().Info("profile provisioned", zap.String("profile_id", profileID))
	return profile, nil
}

func (s *Service) insert(ctx context.Context, operation string, profile *Profile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Profile{}).Where("id = ?", profile.ID).Count(&count).Error; err != nil {
			s.logError(operation, "profile_select_failed", err, zap.String("profile_id", profile.ID))
			return newServiceError(operation, "profile_select_failed", err)
		}
		if count > 0 {
			return newServiceError(operation, "duplicate", ErrProfileExists)
		}
		now := s.now().UTC()
		profile.CreatedAt = now
		profile.UpdatedAt = now
		if err := tx.Create(profile).Error; err != nil {
			s.logError(operation, "insert_failed", err, zap.String("profile_id", profile.ID))
			return newServiceError(operation, "insert_failed", err)
		}
		return nil
	})
}

func nonEmpty(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := normalize(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("profiles service error", attrs...)
}
