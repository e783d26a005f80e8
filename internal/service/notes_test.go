package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/notes-service/internal/cache"
	"github.com/and161185/notes-service/internal/errs"
	"github.com/and161185/notes-service/internal/model"
	"github.com/and161185/notes-service/internal/repository"
)

type fakeNoteRepo struct {
	mu     sync.Mutex
	notes  map[int64]model.Note
	nextID int64

	getCalls    int
	deadlineOps map[string]bool

	createErr error
	getErr    error
	updateErr error
	deleteErr error
}

var _ repository.NoteRepository = (*fakeNoteRepo)(nil)

func newFakeNoteRepo() *fakeNoteRepo {
	return &fakeNoteRepo{notes: map[int64]model.Note{}, deadlineOps: map[string]bool{}}
}

func (f *fakeNoteRepo) recordDeadline(ctx context.Context, op string) {
	_, ok := ctx.Deadline()
	f.deadlineOps[op] = ok
}

func (f *fakeNoteRepo) Create(ctx context.Context, in model.NoteInput) (model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordDeadline(ctx, "create")
	if f.createErr != nil {
		return model.Note{}, f.createErr
	}
	f.nextID++
	n := model.Note{ID: f.nextID, Text: in.Text, Completed: in.Completed}
	f.notes[n.ID] = n
	return n, nil
}

func (f *fakeNoteRepo) Get(ctx context.Context, id int64) (model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordDeadline(ctx, "get")
	f.getCalls++
	if f.getErr != nil {
		return model.Note{}, f.getErr
	}
	n, ok := f.notes[id]
	if !ok {
		return model.Note{}, errs.ErrNotFound
	}
	return n, nil
}

func (f *fakeNoteRepo) List(ctx context.Context, skip, take int) ([]model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordDeadline(ctx, "list")
	out := make([]model.Note, 0, len(f.notes))
	for id := int64(1); id <= f.nextID; id++ {
		if n, ok := f.notes[id]; ok {
			out = append(out, n)
		}
	}
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]
	if take < len(out) {
		out = out[:take]
	}
	return out, nil
}

func (f *fakeNoteRepo) Update(ctx context.Context, id int64, in model.NoteInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordDeadline(ctx, "update")
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.notes[id]; !ok {
		return errs.ErrNotFound
	}
	f.notes[id] = model.Note{ID: id, Text: in.Text, Completed: in.Completed}
	return nil
}

func (f *fakeNoteRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordDeadline(ctx, "delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.notes[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.notes, id)
	return nil
}

func (f *fakeNoteRepo) stored(id int64) (model.Note, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	return n, ok
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte

	getCalls int

	getErr error
	setErr error
	delErr error
}

var _ cache.Cache = (*fakeCache)(nil)

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string][]byte{}} }

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return b, nil
}

func (f *fakeCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = append([]byte(nil), val...)
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.entries, key)
	return nil
}

func (f *fakeCache) entry(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.entries[key]
	return b, ok
}

func (f *fakeCache) evict(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
}

func newNoteSvc(repo *fakeNoteRepo, c *fakeCache) *NoteServiceImpl {
	return NewNoteService(repo, c, zap.NewNop(), 0, time.Second, time.Second)
}

func TestNotes_CreateThenGet_ServedFromCache(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "buy milk", Completed: false})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)
	require.Zero(t, repo.getCalls, "read must be a cache hit")
}

func TestNotes_Create_CacheFailureIsAdvisory(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	fc.setErr = errors.New("redis down")
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "still works"})
	require.NoError(t, err, "store write succeeded, cache failure must not surface")

	// Next read misses the cache and repopulates from the store.
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)
	require.Equal(t, 1, repo.getCalls)
}

func TestNotes_Create_StoreErrorSurfaces(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	repo.createErr = errors.New("connection lost")
	svc := newNoteSvc(repo, fc)

	_, err := svc.Create(context.Background(), model.NoteInput{Text: "x"})
	require.Error(t, err)
	_, ok := fc.entry(noteKey(1))
	require.False(t, ok, "no cache entry without a store write")
}

func TestNotes_UpdateThenGet_SurvivesEviction(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "v1"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, model.NoteInput{Text: "v2", Completed: true})
	require.NoError(t, err)
	require.Equal(t, model.Note{ID: created.ID, Text: "v2", Completed: true}, updated)

	fc.evict(noteKey(created.ID))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, updated, got, "store must reflect the update after eviction")
}

func TestNotes_Update_FillsCacheWithNewValue(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "v1"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, model.NoteInput{Text: "v2"})
	require.NoError(t, err)

	b, ok := fc.entry(noteKey(created.ID))
	require.True(t, ok)
	var cached model.Note
	require.NoError(t, json.Unmarshal(b, &cached))
	require.Equal(t, "v2", cached.Text)
}

func TestNotes_UpdateNonexistent_NoPhantomCacheEntry(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)

	_, err := svc.Update(context.Background(), 99, model.NoteInput{Text: "ghost"})
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, ok := fc.entry(noteKey(99))
	require.False(t, ok)
}

func TestNotes_DeleteThenGet_NotFound(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "gone soon"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	_, ok := fc.entry(noteKey(created.ID))
	require.False(t, ok, "cache entry must be invalidated")

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNotes_Delete_RepeatedOnMissingID(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "x"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	require.ErrorIs(t, svc.Delete(ctx, created.ID), errs.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, created.ID), errs.ErrNotFound)
}

func TestNotes_Delete_CacheRemovalFailureIgnored(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "x"})
	require.NoError(t, err)

	fc.delErr = errors.New("redis down")
	require.NoError(t, svc.Delete(ctx, created.ID), "delete succeeds despite cache failure")

	_, ok := repo.stored(created.ID)
	require.False(t, ok)
}

func TestNotes_Get_CacheErrorFallsBackToStore(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "durable"})
	require.NoError(t, err)

	fc.getErr = errors.New("timeout")
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)
	require.Equal(t, 1, repo.getCalls)
}

func TestNotes_Get_CorruptCacheEntryRepaired(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "clean"})
	require.NoError(t, err)

	require.NoError(t, fc.Set(ctx, noteKey(created.ID), []byte("not json"), 0))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)

	b, ok := fc.entry(noteKey(created.ID))
	require.True(t, ok)
	var cached model.Note
	require.NoError(t, json.Unmarshal(b, &cached))
	require.Equal(t, created, cached)
}

func TestNotes_List_BypassesCache(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	for _, txt := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, model.NoteInput{Text: txt})
		require.NoError(t, err)
	}
	before := fc.getCalls

	ns, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	require.Equal(t, before, fc.getCalls, "list must not consult the cache")
}

func TestNotes_Validation(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	_, err := svc.Create(ctx, model.NoteInput{Text: "   "})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.Update(ctx, 0, model.NoteInput{Text: "x"})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.Get(ctx, -1)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.List(ctx, -1, 10)
	require.ErrorIs(t, err, errs.ErrValidation)

	require.ErrorIs(t, svc.Delete(ctx, 0), errs.ErrValidation)
	require.Empty(t, repo.notes)
}

func TestNotes_StoreCallsAreBounded(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	// A bare context: any deadline the repo observes was set by the service.
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "bounded"})
	require.NoError(t, err)

	fc.evict(noteKey(created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.List(ctx, 0, 10)
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, model.NoteInput{Text: "still bounded"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))

	for _, op := range []string{"create", "get", "list", "update", "delete"} {
		require.True(t, repo.deadlineOps[op], "store %s must carry a deadline", op)
	}
}

func TestNotes_ConcurrentUpdates_LastWriteWins(t *testing.T) {
	t.Parallel()
	repo, fc := newFakeNoteRepo(), newFakeCache()
	svc := newNoteSvc(repo, fc)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.NoteInput{Text: "base"})
	require.NoError(t, err)

	a := model.NoteInput{Text: "payload-a", Completed: false}
	b := model.NoteInput{Text: "payload-b", Completed: true}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for _, in := range []model.NoteInput{a, b} {
		wg.Add(1)
		go func(in model.NoteInput) {
			defer wg.Done()
			_, uerr := svc.Update(ctx, created.ID, in)
			errCh <- uerr
		}(in)
	}
	wg.Wait()
	close(errCh)
	for uerr := range errCh {
		require.NoError(t, uerr)
	}

	// One of the two payloads won in the store; the read must return a whole
	// payload, never a merge.
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Contains(t, []string{a.Text, b.Text}, got.Text)

	stored, ok := repo.stored(created.ID)
	require.True(t, ok)
	require.Contains(t, []string{a.Text, b.Text}, stored.Text)

	// A subsequent write settles any divergence between cache and store.
	settled, err := svc.Update(ctx, created.ID, model.NoteInput{Text: "settled"})
	require.NoError(t, err)

	stored, _ = repo.stored(created.ID)
	require.Equal(t, settled, stored)

	bts, ok := fc.entry(noteKey(created.ID))
	require.True(t, ok)
	var cached model.Note
	require.NoError(t, json.Unmarshal(bts, &cached))
	require.Equal(t, stored, cached, "cache and store agree once writes settle")
}
