package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/notes-service/internal/errs"
	"github.com/and161185/notes-service/internal/model"
)

// NoteRepo implements NoteRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

// Create inserts a note and returns it with the store-assigned ID.
func (r *NoteRepo) Create(ctx context.Context, in model.NoteInput) (model.Note, error) {
	const q = `INSERT INTO notes (text, completed) VALUES ($1, $2) RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, in.Text, in.Completed).Scan(&id); err != nil {
		return model.Note{}, err
	}
	return model.Note{ID: id, Text: in.Text, Completed: in.Completed}, nil
}

// Get returns a single note by ID.
func (r *NoteRepo) Get(ctx context.Context, id int64) (model.Note, error) {
	const q = `SELECT id, text, completed FROM notes WHERE id=$1`
	var n model.Note
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&n.ID, &n.Text, &n.Completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Note{}, errs.ErrNotFound
		}
		return model.Note{}, err
	}
	return n, nil
}

// List returns notes ordered by ID with offset/limit pagination.
func (r *NoteRepo) List(ctx context.Context, skip, take int) ([]model.Note, error) {
	const q = `SELECT id, text, completed FROM notes ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, skip, take)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Note, 0, take)
	for rows.Next() {
		var n model.Note
		if err = rows.Scan(&n.ID, &n.Text, &n.Completed); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Update overwrites a note's fields by ID.
func (r *NoteRepo) Update(ctx context.Context, id int64, in model.NoteInput) error {
	const q = `UPDATE notes SET text=$2, completed=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, in.Text, in.Completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a note by ID.
func (r *NoteRepo) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM notes WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
