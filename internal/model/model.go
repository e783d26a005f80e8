// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Note is a single stored note. The ID is assigned by the store on creation.
type Note struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// NoteInput carries the client-provided fields of a note for create/update.
type NoteInput struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account. The password is stored only as a salted hash.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	PwdHash   []byte    // Argon2id(password, Salt)
	Salt      []byte    // per-user auth salt
	CreatedAt time.Time
}
