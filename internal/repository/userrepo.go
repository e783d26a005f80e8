package repository

import (
	"context"

	"github.com/and161185/notes-service/internal/model"
)

// UserRepository provides access to registered accounts.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists when the
	// username is taken.
	Create(ctx context.Context, u *model.User) error
	// GetByUsername loads a user by username, or errs.ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}
