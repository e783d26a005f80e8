package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/notes-service/internal/cache"
	"github.com/and161185/notes-service/internal/errs"
	"github.com/and161185/notes-service/internal/model"
	"github.com/and161185/notes-service/internal/repository"
)

const (
	noteKeyPrefix = "note:"

	defaultTake = 20
	maxTake     = 100
)

// NoteService defines note operations backed by the durable store with a
// cache-aside layer on top.
type NoteService interface {
	// Create inserts a note and fills the cache with the result.
	Create(ctx context.Context, in model.NoteInput) (model.Note, error)
	// Get returns a note, preferring the cache and falling back to the store.
	Get(ctx context.Context, id int64) (model.Note, error)
	// List returns a page of notes straight from the store (no cache).
	List(ctx context.Context, skip, take int) ([]model.Note, error)
	// Update overwrites a note in the store, then refreshes the cache entry.
	Update(ctx context.Context, id int64, in model.NoteInput) (model.Note, error)
	// Delete removes a note from the store, then invalidates the cache entry.
	Delete(ctx context.Context, id int64) error
}

// NoteServiceImpl keeps the store and the side cache consistent. The store is
// authoritative: every cache mutation follows the store mutation that
// authorizes it, and cache failures degrade to a miss instead of failing the
// request.
type NoteServiceImpl struct {
	repo         repository.NoteRepository
	cache        cache.Cache
	log          *zap.Logger
	cacheTTL     time.Duration
	cacheTimeout time.Duration
	storeTimeout time.Duration
}

// NewNoteService constructs a NoteService. cacheTTL <= 0 means entries do not
// expire; cacheTimeout and storeTimeout bound every individual cache and
// store call respectively.
func NewNoteService(repo repository.NoteRepository, c cache.Cache, log *zap.Logger, cacheTTL, cacheTimeout, storeTimeout time.Duration) *NoteServiceImpl {
	if cacheTimeout <= 0 {
		cacheTimeout = 500 * time.Millisecond
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &NoteServiceImpl{repo: repo, cache: c, log: log, cacheTTL: cacheTTL, cacheTimeout: cacheTimeout, storeTimeout: storeTimeout}
}

// storeCtx bounds a store call; the raw request context carries no deadline.
func (s *NoteServiceImpl) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func noteKey(id int64) string { return fmt.Sprintf("%s%d", noteKeyPrefix, id) }

func validateInput(in model.NoteInput) error {
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("%w: empty text", errs.ErrValidation)
	}
	return nil
}

// Create inserts into the store first; the cache fill is best-effort.
func (s *NoteServiceImpl) Create(ctx context.Context, in model.NoteInput) (model.Note, error) {
	if err := validateInput(in); err != nil {
		return model.Note{}, err
	}
	sctx, cancel := s.storeCtx(ctx)
	n, err := s.repo.Create(sctx, in)
	cancel()
	if err != nil {
		return model.Note{}, fmt.Errorf("create note: %w", err)
	}
	s.fillCache(ctx, n)
	return n, nil
}

// Get checks the cache by key first; on a miss it reads the store and fills
// the cache before returning. A stale fill racing a concurrent writer is
// accepted; the next successful write for the id overwrites it.
func (s *NoteServiceImpl) Get(ctx context.Context, id int64) (model.Note, error) {
	if id <= 0 {
		return model.Note{}, fmt.Errorf("%w: non-positive id", errs.ErrValidation)
	}

	key := noteKey(id)
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	b, err := s.cache.Get(cctx, key)
	cancel()
	switch {
	case err == nil:
		var n model.Note
		if uerr := json.Unmarshal(b, &n); uerr == nil {
			return n, nil
		}
		// Undecodable entry: drop it and fall back to the store.
		s.invalidateCache(ctx, id)
	case !errors.Is(err, cache.ErrCacheMiss):
		s.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	sctx, cancel := s.storeCtx(ctx)
	n, err := s.repo.Get(sctx, id)
	cancel()
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Note{}, err
		}
		return model.Note{}, fmt.Errorf("get note %d: %w", id, err)
	}
	s.fillCache(ctx, n)
	return n, nil
}

// List bypasses the cache entirely; pages always come from the store.
func (s *NoteServiceImpl) List(ctx context.Context, skip, take int) ([]model.Note, error) {
	if skip < 0 {
		return nil, fmt.Errorf("%w: negative skip", errs.ErrValidation)
	}
	if take <= 0 {
		take = defaultTake
	}
	if take > maxTake {
		take = maxTake
	}
	sctx, cancel := s.storeCtx(ctx)
	ns, err := s.repo.List(sctx, skip, take)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return ns, nil
}

// Update writes the store first. Zero rows affected leaves the cache untouched
// (no phantom entries); on success the known-new value is filled, not
// invalidated.
func (s *NoteServiceImpl) Update(ctx context.Context, id int64, in model.NoteInput) (model.Note, error) {
	if id <= 0 {
		return model.Note{}, fmt.Errorf("%w: non-positive id", errs.ErrValidation)
	}
	if err := validateInput(in); err != nil {
		return model.Note{}, err
	}
	sctx, cancel := s.storeCtx(ctx)
	err := s.repo.Update(sctx, id, in)
	cancel()
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Note{}, err
		}
		return model.Note{}, fmt.Errorf("update note %d: %w", id, err)
	}
	n := model.Note{ID: id, Text: in.Text, Completed: in.Completed}
	s.fillCache(ctx, n)
	return n, nil
}

// Delete removes from the store first, then invalidates the cache entry.
// Invalidation of an absent key is a success.
func (s *NoteServiceImpl) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: non-positive id", errs.ErrValidation)
	}
	sctx, cancel := s.storeCtx(ctx)
	err := s.repo.Delete(sctx, id)
	cancel()
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete note %d: %w", id, err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

// fillCache writes a known-correct note into the cache. Runs detached from
// request cancellation: once the store write succeeded, an aborted request
// must not strand a stale entry. Failures are logged and dropped.
func (s *NoteServiceImpl) fillCache(ctx context.Context, n model.Note) {
	b, err := json.Marshal(n)
	if err != nil {
		s.log.Warn("cache marshal failed", zap.Int64("id", n.ID), zap.Error(err))
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
	defer cancel()
	if err := s.cache.Set(cctx, noteKey(n.ID), b, s.cacheTTL); err != nil {
		s.log.Warn("cache set failed", zap.Int64("id", n.ID), zap.Error(err))
	}
}

// invalidateCache removes the entry for id, best-effort.
func (s *NoteServiceImpl) invalidateCache(ctx context.Context, id int64) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
	defer cancel()
	if err := s.cache.Delete(cctx, noteKey(id)); err != nil {
		s.log.Warn("cache delete failed", zap.Int64("id", id), zap.Error(err))
	}
}
