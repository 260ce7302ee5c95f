package users

import "context"

// Repo is the user-record collaborator the auth core consumes.
type Repo interface {
	// FindByExternalID returns the user with the given provider subject
	// ID, or errors.ErrUserNotFound.
	FindByExternalID(ctx context.Context, externalID string) (*User, error)

	// Upsert creates the user on first sight of the external ID,
	// otherwise refreshes profile fields and bumps LastLogin. Returns
	// the stored record.
	Upsert(ctx context.Context, profile Profile) (*User, error)
}
