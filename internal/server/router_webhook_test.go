package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/identity"
)

func TestWebhookUnavailableWithoutProcessor(testContext *testing.T) {
	server := newTestServer(testContext, nil)

	recorder := server.do(testContext, http.MethodPost, "/api/webhooks", `{"type":"user.created"}`, nil)
	if recorder.Code != http.StatusServiceUnavailable {
		testContext.Fatalf("expected service unavailable, got %d", recorder.Code)
	}
}

func TestWebhookMapsProcessorErrors(testContext *testing.T) {
	cases := []struct {
		err      error
		status   int
		expected string
	}{
		{err: nil, status: http.StatusOK, expected: ""},
		{err: fmt.Errorf("%w: svix-id", identity.ErrMissingHeaders), status: http.StatusBadRequest, expected: `{"error":"missing_signature_headers"}`},
		{err: identity.ErrInvalidSignature, status: http.StatusBadRequest, expected: `{"error":"invalid_signature"}`},
		{err: identity.ErrInvalidEvent, status: http.StatusBadRequest, expected: `{"error":"invalid_event"}`},
		{err: errors.New("database locked"), status: http.StatusInternalServerError, expected: `{"error":"webhook_failed"}`},
	}
	for index, testCase := range cases {
		processor := stubWebhookProcessor{outcome: identity.OutcomeProvisioned, err: testCase.err}
		server := newTestServer(testContext, func(deps *Dependencies) {
			deps.Webhooks = processor
		})

		recorder := server.do(testContext, http.MethodPost, "/api/webhooks", `{"type":"user.created"}`, nil)
		if recorder.Code != testCase.status {
			testContext.Fatalf("case %d: expected status %d, got %d", index, testCase.status, recorder.Code)
		}
		if recorder.Body.String() != testCase.expected {
			testContext.Fatalf("case %d: unexpected body %q", index, recorder.Body.String())
		}
	}
}
