package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the requested link does not exist.
	ErrNotFound = errors.New("links: not found")
	// ErrInvalidLink indicates the supplied fields failed validation.
	ErrInvalidLink = errors.New("links: invalid link")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
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
	opServiceNew  = "links.service.new"
	opCreate      = "links.create"
	opGet         = "links.get"
	opListByOwner = "links.list_by_owner"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service stores and retrieves links. A profile's links are the rows whose
// user_id matches the profile, so creating a link is a single write.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create validates and persists a new link.
func (s *Service) Create(ctx context.Context, input NewLink) (Link, error) {
	if s.db == nil {
		s.logError(opCreate, "missing_database", errMissingDatabase)
		return Link{}, newServiceError(opCreate, "missing_database", errMissingDatabase)
	}
	if err := input.Validate(); err != nil {
		return Link{}, newServiceError(opCreate, "validation_failed", fmt.Errorf("%w: %v", ErrInvalidLink, err))
	}

	linkID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", input.UserID))
		return Link{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	tags := make([]string, 0, len(input.Tags))
	tags = append(tags, input.Tags...)

	link := Link{
		ID:          linkID,
		UserID:      input.UserID,
		URL:         input.URL,
		Title:       input.Title,
		Description: input.Description,
		MediaType:   input.MediaType,
		Collection:  input.Collection,
		Tags:        datatypes.JSONSlice[string](tags),
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		s.logError(opCreate, "insert_failed", err,
			zap.String("user_id", input.UserID),
			zap.String("link_id", linkID))
		return Link{}, newServiceError(opCreate, "insert_failed", err)
	}

	metrics.ObserveLinkCreated(link.MediaType.String())
	s.loggerOrDefault().Info("link created",
		zap.String("user_id", link.UserID),
		zap.String("link_id", link.ID),
		zap.String("collection", link.Collection))
	return link, nil
}

// Get returns the link with the provided identifier.
func (s *Service) Get(ctx context.Context, linkID string) (Link, error) {
	if s.db == nil {
		s.logError(opGet, "missing_database", errMissingDatabase)
		return Link{}, newServiceError(opGet, "missing_database", errMissingDatabase)
	}

	var link Link
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(linkID)).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Link{}, newServiceError(opGet, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("link_id", linkID))
		return Link{}, newServiceError(opGet, "query_failed", err)
	}
	return link, nil
}

// ListByOwner returns every link owned by userID in creation order.
func (s *Service) ListByOwner(ctx context.Context, userID string) ([]Link, error) {
	if s.db == nil {
		s.logError(opListByOwner, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListByOwner, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, newServiceError(opListByOwner, "missing_user_id", errMissingUserID)
	}

	var owned []Link
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&owned).Error; err != nil {
		s.logError(opListByOwner, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListByOwner, "query_failed", err)
	}
	return owned, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
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
	s.loggerOrDefault().Error("links service error", attrs...)
}
