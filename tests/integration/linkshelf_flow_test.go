package integration_test

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/auth"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/database"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/identity"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/links"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/metadata"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/server"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "__session"
	sessionIssuer        = "linkshelf-identity"
)

var webhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("integration-webhook-secret-0001"))

type linkPayload struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userID"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MediaType   string   `json:"mediaType"`
	Collection  string   `json:"collection"`
	Tags        []string `json:"tags"`
}

type profilePayload struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	Avatar      *string       `json:"avatar"`
	Bio         string        `json:"bio"`
	Socials     []any         `json:"socials"`
	Collections []string      `json:"collections"`
	Links       []linkPayload `json:"links"`
}

type harness struct {
	client *resty.Client
	issuer *auth.SessionIssuer
}

func newHarness(testContext *testing.T, withSessions bool) harness {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+testContext.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(testContext, err)
	require.NoError(testContext, database.Migrate(db, zap.NewNop()))

	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database:   db,
		IDProvider: links.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	require.NoError(testContext, err)
	linkService, err := links.NewService(links.ServiceConfig{
		Database:   db,
		IDProvider: links.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	require.NoError(testContext, err)

	verifier, err := identity.NewVerifier(webhookSecret)
	require.NoError(testContext, err)
	processor, err := identity.NewProcessor(verifier, profileService, zap.NewNop())
	require.NoError(testContext, err)

	deps := server.Dependencies{
		Profiles: profileService,
		Links:    linkService,
		Metadata: metadata.New(metadata.Config{Timeout: 2 * time.Second}, zap.NewNop()),
		Webhooks: processor,
		Logger:   zap.NewNop(),
	}
	if withSessions {
		validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
			SigningSecret: []byte(sessionSigningSecret),
			Issuer:        sessionIssuer,
			CookieName:    sessionCookieName,
		})
		require.NoError(testContext, err)
		deps.Sessions = validator
	}
	handler, err := server.NewHTTPHandler(deps)
	require.NoError(testContext, err)

	testServer := httptest.NewServer(handler)
	testContext.Cleanup(testServer.Close)

	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
	})
	require.NoError(testContext, err)

	return harness{
		client: resty.New().SetBaseURL(testServer.URL).SetHeader("Content-Type", "application/json"),
		issuer: issuer,
	}
}

func (h harness) deliverWebhook(testContext *testing.T, event map[string]any) *resty.Response {
	testContext.Helper()
	payload, err := json.Marshal(event)
	require.NoError(testContext, err)

	signer, err := svix.NewWebhook(webhookSecret)
	require.NoError(testContext, err)
	now := time.Now()
	msgID := "msg_" + strconv.FormatInt(now.UnixNano(), 10)
	signature, err := signer.Sign(msgID, now, payload)
	require.NoError(testContext, err)

	response, err := h.client.R().
		SetHeader(identity.HeaderID, msgID).
		SetHeader(identity.HeaderTimestamp, strconv.FormatInt(now.Unix(), 10)).
		SetHeader(identity.HeaderSignature, signature).
		SetBody(payload).
		Post("/api/webhooks")
	require.NoError(testContext, err)
	return response
}

func TestWebhookProvisionsProfile(testContext *testing.T) {
	h := newHarness(testContext, false)

	event := map[string]any{
		"type": "user.created",
		"data": map[string]any{"id": "user_abc12XYZ", "username": "jdoe", "image_url": "http://x/a.png"},
	}
	response := h.deliverWebhook(testContext, event)
	require.Equal(testContext, http.StatusOK, response.StatusCode())

	var profile profilePayload
	fetched, err := h.client.R().SetResult(&profile).Get("/api/profile/abc12XYZ")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusOK, fetched.StatusCode())
	require.Equal(testContext, "abc12XYZ", profile.ID)
	require.Equal(testContext, "jdoe", profile.Username)
	require.NotNil(testContext, profile.Avatar)
	require.Equal(testContext, "http://x/a.png", *profile.Avatar)
	require.Equal(testContext, "", profile.Bio)
	require.Empty(testContext, profile.Socials)
	require.NotNil(testContext, profile.Collections)
	require.Empty(testContext, profile.Collections)
	require.Empty(testContext, profile.Links)

	redelivered := h.deliverWebhook(testContext, event)
	require.Equal(testContext, http.StatusOK, redelivered.StatusCode())
}

func TestWebhookRejectsUnsignedDelivery(testContext *testing.T) {
	h := newHarness(testContext, false)

	response, err := h.client.R().
		SetBody(`{"type":"user.created","data":{"id":"user_mallory"}}`).
		Post("/api/webhooks")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusBadRequest, response.StatusCode())

	missing, err := h.client.R().Get("/api/profile/mallory")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusNotFound, missing.StatusCode())
}

func TestPostLinkThenListByUser(testContext *testing.T) {
	h := newHarness(testContext, false)

	var created linkPayload
	response, err := h.client.R().
		SetBody(map[string]any{
			"userID":     "42",
			"url":        "https://ex.com",
			"title":      "T",
			"mediaType":  "ARTICLE",
			"collection": "Tech",
			"tags":       []string{"a", "b"},
		}).
		SetResult(&created).
		Post("/api/link/post")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusCreated, response.StatusCode())
	require.NotEmpty(testContext, created.ID)
	require.Equal(testContext, "42", created.UserID)
	require.Equal(testContext, "https://ex.com", created.URL)
	require.Equal(testContext, "T", created.Title)
	require.Equal(testContext, "ARTICLE", created.MediaType)
	require.Equal(testContext, "Tech", created.Collection)
	require.Equal(testContext, []string{"a", "b"}, created.Tags)

	var owned []linkPayload
	listed, err := h.client.R().SetResult(&owned).Get("/api/link/42")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusOK, listed.StatusCode())
	require.Len(testContext, owned, 1)
	require.Equal(testContext, created.ID, owned[0].ID)
}

func TestSessionProtectsWriteRoutes(testContext *testing.T) {
	h := newHarness(testContext, true)
	body := map[string]any{"userID": "user_abc12XYZ", "url": "https://go.dev", "title": "Go", "mediaType": "WEBSITE"}

	anonymous, err := h.client.R().SetBody(body).Post("/api/link/post")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusUnauthorized, anonymous.StatusCode())

	foreignToken, _, err := h.issuer.Issue("user_someoneElse")
	require.NoError(testContext, err)
	foreign, err := h.client.R().SetAuthToken(foreignToken).SetBody(body).Post("/api/link/post")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusForbidden, foreign.StatusCode())

	ownerToken, _, err := h.issuer.Issue("user_abc12XYZ")
	require.NoError(testContext, err)
	owner, err := h.client.R().
		SetCookie(&http.Cookie{Name: sessionCookieName, Value: ownerToken}).
		SetBody(body).
		Post("/api/link/post")
	require.NoError(testContext, err)
	require.Equal(testContext, http.StatusCreated, owner.StatusCode())
}
