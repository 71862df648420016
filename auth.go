package main

import (
	"context"
	"fmt"
)

// authenticateUser verifies username/password against the Catalog Store.
// Both "no such user" and "wrong password" return the identical
// InvalidCredentials error — the caller must not be able to distinguish
// them, since doing so would leak account existence. To keep their response
// latencies statistically indistinguishable (SPEC_FULL.md §4.6/P7), the
// "user not found" path still performs a full bcrypt verification against a
// fixed dummy hash before returning.
func authenticateUser(ctx context.Context, g *Gateway, username, password string) (*User, error) {
	user, err := GetUserByUsername(ctx, g, username)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if user == nil {
		verifyPassword(dummyPasswordHash(), password)
		return nil, unauthorized(msgInvalidCredentials)
	}

	if !verifyPassword(user.PasswordHash, password) {
		return nil, unauthorized(msgInvalidCredentials)
	}

	return user, nil
}
