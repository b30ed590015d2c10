package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/auth"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/identity"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/links"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/logging"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/metadata"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/metrics"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const profileIDContextKey = "linkshelf_profile_id"

var (
	errMissingProfilesService = errors.New("profiles service dependency required")
	errMissingLinksService    = errors.New("links service dependency required")
	errMissingExtractor       = errors.New("metadata extractor dependency required")
)

type MetadataExtractor interface {
	Extract(ctx context.Context, rawURL string) (metadata.Metadata, error)
}

type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, headers http.Header) (identity.Outcome, error)
}

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP surface. Webhooks and Sessions are optional: a
// nil Webhooks answers 503 and a nil Sessions leaves write routes open.
type Dependencies struct {
	Profiles *profiles.Service
	Links    *links.Service
	Metadata MetadataExtractor
	Webhooks WebhookProcessor
	Sessions SessionValidator
	Logger   *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Profiles == nil {
		return nil, errMissingProfilesService
	}
	if deps.Links == nil {
		return nil, errMissingLinksService
	}
	if deps.Metadata == nil {
		return nil, errMissingExtractor
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(logging.GinMiddleware(logger))
	router.Use(metrics.GinMiddleware())

	handler := &httpHandler{
		profiles: deps.Profiles,
		links:    deps.Links,
		metadata: deps.Metadata,
		webhooks: deps.Webhooks,
		sessions: deps.Sessions,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.POST("/fetch-metadata", handler.handleFetchMetadata)
	api.GET("/link/:id", handler.handleGetLinks)
	api.GET("/profile/:id", handler.handleGetProfile)
	api.GET("/profile/:id/links", handler.handleFilterProfileLinks)
	api.GET("/profiles", handler.handleListProfiles)
	api.POST("/profile/create", handler.handleCreateProfile)
	api.POST("/profile/collections", handler.handleCollections)
	api.POST("/webhooks", handler.handleWebhook)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/link/post", handler.handleCreateLink)
	protected.POST("/profile/update", handler.handleUpdateProfile)
	protected.PUT("/profile/update", handler.handleUpdateProfile)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{
			"Authorization",
			"Content-Type",
			identity.HeaderID,
			identity.HeaderTimestamp,
			identity.HeaderSignature,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	profiles *profiles.Service
	links    *links.Service
	metadata MetadataExtractor
	webhooks WebhookProcessor
	sessions SessionValidator
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleFetchMetadata(c *gin.Context) {
	var request fetchMetadataRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url_required"})
		return
	}

	result, err := h.metadata.Extract(c.Request.Context(), strings.TrimSpace(request.URL))
	if err != nil {
		h.logger.Warn("metadata fetch failed", zap.String("url", request.URL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metadata_fetch_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGetLinks serves both /api/link/<link id> and /api/link/<user id>. An
// id shaped like a link id that matches no link is treated as a user id.
func (h *httpHandler) handleGetLinks(c *gin.Context) {
	rawID := strings.TrimSpace(c.Param("id"))
	if rawID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}

	if links.IsLinkID(rawID) {
		link, err := h.links.Get(c.Request.Context(), rawID)
		if err == nil {
			c.JSON(http.StatusOK, newLinkResponse(link))
			return
		}
		if !errors.Is(err, links.ErrNotFound) {
			h.respondServiceError(c, err, "link_query_failed")
			return
		}
	}

	userID := profiles.ProfileIDFromExternal(rawID)
	owned, err := h.links.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.respondServiceError(c, err, "link_query_failed")
		return
	}
	if len(owned) == 0 {
		if _, err := h.profiles.Get(c.Request.Context(), userID); err != nil {
			if errors.Is(err, profiles.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Link not found"})
				return
			}
			h.respondServiceError(c, err, "link_query_failed")
			return
		}
	}
	c.JSON(http.StatusOK, newLinkResponses(owned))
}

func (h *httpHandler) handleCreateLink(c *gin.Context) {
	var request createLinkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID := request.UserID.profileID()
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id_required"})
		return
	}
	if !h.ownsProfile(c, userID) {
		return
	}
	mediaType, err := links.ParseMediaType(request.MediaType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_media_type"})
		return
	}

	created, err := h.links.Create(c.Request.Context(), links.NewLink{
		UserID:      userID,
		URL:         strings.TrimSpace(request.URL),
		Title:       request.Title,
		Description: request.Description,
		MediaType:   mediaType,
		Collection:  request.Collection,
		Tags:        []string(request.Tags),
	})
	if err != nil {
		h.respondServiceError(c, err, "link_create_failed")
		return
	}
	c.JSON(http.StatusCreated, newLinkResponse(created))
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profileID := profiles.ProfileIDFromExternal(c.Param("id"))
	profile, err := h.profiles.Get(c.Request.Context(), profileID)
	if err != nil {
		h.respondServiceError(c, err, "profile_query_failed")
		return
	}
	owned, err := h.links.ListByOwner(c.Request.Context(), profile.ID)
	if err != nil {
		h.respondServiceError(c, err, "profile_query_failed")
		return
	}
	c.JSON(http.StatusOK, profileDetailPayload{
		profileResponsePayload: newProfileResponse(profile),
		Links:                  newLinkResponses(owned),
	})
}

func (h *httpHandler) handleFilterProfileLinks(c *gin.Context) {
	options, err := links.FilterOptionsFromQuery(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter"})
		return
	}
	profileID := profiles.ProfileIDFromExternal(c.Param("id"))
	if _, err := h.profiles.Get(c.Request.Context(), profileID); err != nil {
		h.respondServiceError(c, err, "profile_query_failed")
		return
	}
	owned, err := h.links.ListByOwner(c.Request.Context(), profileID)
	if err != nil {
		h.respondServiceError(c, err, "link_query_failed")
		return
	}
	c.JSON(http.StatusOK, newLinkResponses(links.Filter(owned, options)))
}

func (h *httpHandler) handleListProfiles(c *gin.Context) {
	summaries, err := h.profiles.List(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err, "profile_list_failed")
		return
	}
	response := make([]profileSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		response = append(response, profileSummaryPayload{
			ID:       summary.ID,
			Username: summary.Username,
			Avatar:   summary.Avatar,
			Bio:      summary.Bio,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateProfile(c *gin.Context) {
	var request createProfileRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.profiles.Create(c.Request.Context(), profiles.NewProfile{
		ID:          string(request.ID),
		Username:    request.Username,
		Avatar:      request.Avatar,
		Bio:         request.Bio,
		Socials:     []profiles.Social(request.Socials),
		Collections: []string(request.Collections),
	})
	if err != nil {
		h.respondServiceError(c, err, "profile_create_failed")
		return
	}
	c.JSON(http.StatusCreated, newProfileResponse(created))
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request updateProfileRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	update := request.toUpdate()
	if update.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile_id_required"})
		return
	}
	if !h.ownsProfile(c, update.ID) {
		return
	}
	updated, err := h.profiles.Update(c.Request.Context(), update)
	if err != nil {
		h.respondServiceError(c, err, "profile_update_failed")
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(updated))
}

func (h *httpHandler) handleCollections(c *gin.Context) {
	var request collectionsRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID.profileID() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id_required"})
		return
	}
	names, err := h.profiles.Collections(c.Request.Context(), request.UserID.profileID())
	if err != nil {
		h.respondServiceError(c, err, "collections_query_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": names})
}

func (h *httpHandler) handleWebhook(c *gin.Context) {
	if h.webhooks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook_not_configured"})
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	_, err = h.webhooks.Handle(c.Request.Context(), payload, c.Request.Header)
	switch {
	case errors.Is(err, identity.ErrMissingHeaders):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_signature_headers"})
	case errors.Is(err, identity.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
	case errors.Is(err, identity.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event"})
	case err != nil:
		h.logger.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook_failed"})
	default:
		c.Status(http.StatusOK)
	}
}

// authorizeRequest attaches the session's profile id when session auth is
// enabled and passes every request through otherwise.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if h.sessions == nil {
		c.Next()
		return
	}
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(profileIDContextKey, claims.ProfileID())
	c.Next()
}

// ownsProfile writes 403 and returns false when an authenticated session
// targets another user's profile.
func (h *httpHandler) ownsProfile(c *gin.Context, profileID string) bool {
	if h.sessions == nil {
		return true
	}
	sessionProfileID := c.GetString(profileIDContextKey)
	if sessionProfileID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	if sessionProfileID != profileID {
		h.logger.Warn("session does not own profile",
			zap.String("session_profile_id", sessionProfileID),
			zap.String("profile_id", profileID))
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

type codedError interface {
	Code() string
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, profiles.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Profile not found"})
		return
	case errors.Is(err, links.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Link not found"})
		return
	case errors.Is(err, links.ErrInvalidLink), errors.Is(err, profiles.ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed"})
		return
	case errors.Is(err, profiles.ErrProfileExists):
		c.JSON(http.StatusConflict, gin.H{"error": "profile_exists"})
		return
	}

	code := fallbackCode
	var coded codedError
	if errors.As(err, &coded) && coded.Code() != "" {
		code = coded.Code()
	}
	h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": code})
}
