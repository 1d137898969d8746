package idgen

import "github.com/google/uuid"

// New returns a UUIDv7 identifier string.
// If UUIDv7 generation fails, it falls back to a random UUIDv4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DefaultSessionID identifies a module's single default conversation when the
// caller does not supply a session of its own.
const DefaultSessionID = "00000000-0000-0000-0000-000000000000"

// SessionID returns the given session id, or DefaultSessionID when blank.
func SessionID(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}
