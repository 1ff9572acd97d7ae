package auth

import (
	"context"
	"time"
)

// Identity is the authenticated user attached to a request.
type Identity struct {
	UserID    int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential is what the credential store returns for an identifier.
type Credential struct {
	Identity Identity
	Digest   string
}

// CredentialStore is the credential side of the user record store. Lookups
// report absence through the bool, never through an error.
type CredentialStore interface {
	LookupCredential(ctx context.Context, identifier string) (Credential, bool, error)
	StoreCredential(ctx context.Context, subjectID int64, digest, algo string) error
}

// UserStore resolves token subjects to user records.
type UserStore interface {
	LookupUser(ctx context.Context, id int64) (Identity, bool, error)
}
