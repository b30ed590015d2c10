package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/database"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/identity"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/links"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/metadata"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
)

type stubExtractor struct {
	result metadata.Metadata
	err    error
}

func (s stubExtractor) Extract(context.Context, string) (metadata.Metadata, error) {
	return s.result, s.err
}

type stubWebhookProcessor struct {
	outcome identity.Outcome
	err     error
}

func (s stubWebhookProcessor) Handle(context.Context, []byte, http.Header) (identity.Outcome, error) {
	return s.outcome, s.err
}

type testServer struct {
	handler  http.Handler
	profiles *profiles.Service
	links    *links.Service
}

func newTestServices(t *testing.T) (*profiles.Service, *links.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	clock := func() time.Time { return time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC) }

	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: links.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build profiles service: %v", err)
	}
	linkService, err := links.NewService(links.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: links.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build links service: %v", err)
	}
	return profileService, linkService
}

func newTestServer(t *testing.T, mutate func(*Dependencies)) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	profileService, linkService := newTestServices(t)
	deps := Dependencies{
		Profiles: profileService,
		Links:    linkService,
		Metadata: stubExtractor{result: metadata.Metadata{Title: "Example", Description: "An example page", MediaType: "website"}},
		Logger:   zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return testServer{handler: handler, profiles: profileService, links: linkService}
}

func (s testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}
