// Package identity consumes signed user lifecycle events from the identity provider.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/metrics"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
)

const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"

	// EventUserCreated is the only event type that changes state.
	EventUserCreated = "user.created"
)

var (
	ErrMissingSecret    = errors.New("identity: webhook secret required")
	ErrMissingHeaders   = errors.New("identity: missing signature headers")
	ErrInvalidSignature = errors.New("identity: invalid signature")
	ErrInvalidEvent     = errors.New("identity: invalid event payload")
	errMissingProfiles  = errors.New("identity: profile provisioner required")
)

// Verifier checks the signature envelope of webhook deliveries.
type Verifier struct {
	webhook *svix.Webhook
}

// NewVerifier builds a verifier for the endpoint secret (whsec_...).
func NewVerifier(secret string) (*Verifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, ErrMissingSecret
	}
	webhook, err := svix.NewWebhook(trimmed)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid webhook secret: %w", err)
	}
	return &Verifier{webhook: webhook}, nil
}

// Verify rejects deliveries lacking any of the three signature headers or
// whose signature does not match payload.
func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	for _, name := range []string{HeaderID, HeaderTimestamp, HeaderSignature} {
		if strings.TrimSpace(headers.Get(name)) == "" {
			return fmt.Errorf("%w: %s", ErrMissingHeaders, name)
		}
	}
	if err := v.webhook.Verify(payload, headers); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// Event is a user lifecycle event.
type Event struct {
	Type string   `json:"type"`
	Data UserData `json:"data"`
}

// UserData holds the user attributes LinkShelf reads from an event.
type UserData struct {
	ID       string  `json:"id"`
	Username *string `json:"username"`
	ImageURL string  `json:"image_url"`
}

// DecodeEvent parses a verified payload.
func DecodeEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(event.Type) == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return event, nil
}

// ProvisionRequest converts a user.created event into a profile provisioning request.
func (e Event) ProvisionRequest() profiles.ProvisionRequest {
	username := ""
	if e.Data.Username != nil {
		username = *e.Data.Username
	}
	return profiles.ProvisionRequest{
		ExternalID: e.Data.ID,
		Username:   username,
		ImageURL:   e.Data.ImageURL,
	}
}

// ProfileProvisioner creates profiles for new identities.
type ProfileProvisioner interface {
	Provision(ctx context.Context, request profiles.ProvisionRequest) (profiles.Profile, error)
}

// Outcome describes what a delivery did.
type Outcome string

const (
	OutcomeProvisioned        Outcome = "provisioned"
	OutcomeAlreadyProvisioned Outcome = "already_provisioned"
	OutcomeIgnored            Outcome = "ignored"
)

// Processor verifies deliveries and applies user.created events.
type Processor struct {
	verifier *Verifier
	profiles ProfileProvisioner
	logger   *zap.Logger
}

// NewProcessor wires a verifier to the profile store.
func NewProcessor(verifier *Verifier, provisioner ProfileProvisioner, logger *zap.Logger) (*Processor, error) {
	if verifier == nil {
		return nil, ErrMissingSecret
	}
	if provisioner == nil {
		return nil, errMissingProfiles
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{verifier: verifier, profiles: provisioner, logger: logger}, nil
}

// Handle verifies and applies one delivery. Verification and decoding errors
// leave state untouched.
func (p *Processor) Handle(ctx context.Context, payload []byte, headers http.Header) (Outcome, error) {
	if err := p.verifier.Verify(payload, headers); err != nil {
		metrics.ObserveWebhookEvent("unknown", "rejected")
		p.logger.Warn("webhook verification failed", zap.Error(err))
		return "", err
	}
	event, err := DecodeEvent(payload)
	if err != nil {
		metrics.ObserveWebhookEvent("unknown", "rejected")
		p.logger.Warn("webhook payload rejected", zap.Error(err))
		return "", err
	}

	p.logger.Info("webhook received",
		zap.String("event_type", event.Type),
		zap.String("subject_id", event.Data.ID),
		zap.String("delivery_id", headers.Get(HeaderID)))

	if event.Type != EventUserCreated {
		metrics.ObserveWebhookEvent(event.Type, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	_, err = p.profiles.Provision(ctx, event.ProvisionRequest())
	switch {
	case errors.Is(err, profiles.ErrProfileExists):
		metrics.ObserveWebhookEvent(event.Type, string(OutcomeAlreadyProvisioned))
		return OutcomeAlreadyProvisioned, nil
	case errors.Is(err, profiles.ErrInvalidIdentity):
		metrics.ObserveWebhookEvent(event.Type, "rejected")
		return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	case err != nil:
		metrics.ObserveWebhookEvent(event.Type, "failed")
		p.logger.Error("profile provisioning failed", zap.String("subject_id", event.Data.ID), zap.Error(err))
		return "", err
	}
	metrics.ObserveWebhookEvent(event.Type, string(OutcomeProvisioned))
	return OutcomeProvisioned, nil
}
