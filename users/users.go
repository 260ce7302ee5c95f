package users

import "time"

// User is the local profile record for someone who has signed in through
// the identity provider. It is keyed internally by ID and externally by
// the provider's subject ID. It carries no credentials: authentication
// is entirely the provider's job, and local persistence of this record
// is deliberately outside the trust path (an upsert failure never aborts
// a login).
type User struct {
	ID          string    `json:"id"`          // local primary key (UUID)
	ExternalID  string    `json:"external_id"` // provider subject ID, unique
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login"`
}

// Profile is the provider-supplied identity used to create or refresh a
// local record.
type Profile struct {
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
}
