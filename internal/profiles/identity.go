package profiles

import "strings"

// ExternalIDPrefix is the literal prefix the identity provider puts on user ids.
const ExternalIDPrefix = "user_"

// ProfileIDFromExternal derives a profile id by removing ExternalIDPrefix once from the start.
// Ids that do not carry the prefix are returned unchanged.
func ProfileIDFromExternal(externalID string) string {
	return strings.TrimPrefix(normalize(externalID), ExternalIDPrefix)
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
