// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/notes-service/internal/model"
)

// NoteRepository provides CRUD access to durable notes. It is the system of
// record; the cache layer on top of it holds only ephemeral copies.
type NoteRepository interface {
	// Create inserts a note; the store assigns the ID.
	Create(ctx context.Context, in model.NoteInput) (model.Note, error)

	// Get returns a single note by ID, or errs.ErrNotFound.
	Get(ctx context.Context, id int64) (model.Note, error)

	// List returns notes ordered by ID, skipping skip rows and returning at
	// most take rows.
	List(ctx context.Context, skip, take int) ([]model.Note, error)

	// Update overwrites text and completed for the given ID.
	// Returns errs.ErrNotFound when no row matched.
	Update(ctx context.Context, id int64, in model.NoteInput) error

	// Delete removes the note with the given ID.
	// Returns errs.ErrNotFound when no row matched.
	Delete(ctx context.Context, id int64) error
}
