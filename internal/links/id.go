package links

import "github.com/google/uuid"

// IDProvider issues identifiers for new links.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// IsLinkID reports whether raw has the shape of an issued link identifier.
func IsLinkID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}
