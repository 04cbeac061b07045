// Package auth verifies the bearer credentials presented at connection
// time and issues tokens for the REST login flow.
package auth

import "fmt"

// AuthenticationError indicates a bad, missing, or expired credential.
// Connections failing authentication are refused before any handler runs.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Verifier resolves a bearer token to a user ID.
type Verifier interface {
	Verify(token string) (userID string, err error)
}
