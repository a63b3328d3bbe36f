package models

import (
	"slices"
	"time"
)

// APIClient is a registered programmatic client. Only the bcrypt hash of its
// secret is kept.
type APIClient struct {
	Subject    string
	SecretHash string
	// Scopes bounds what a claim set for this client may assert.
	Scopes    []string
	Disabled  bool
	CreatedAt time.Time
}

// Allows reports whether every scope is within the client's registration.
func (c APIClient) Allows(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}
