package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"okey-server/internal/database"
	"okey-server/internal/okey"
)

func testRecord(code string, status okey.Status, updated time.Time) MatchRecord {
	return MatchRecord{
		RoomCode:  code,
		Status:    status,
		Data:      []byte(`{"status":"` + string(status) + `"}`),
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

// exerciseStore runs the MatchStore contract against any implementation.
// old must be far enough in the past to be cleaned up with a one hour cutoff.
func exerciseStore(t *testing.T, store MatchStore, now, old time.Time) {
	ctx := context.Background()

	_, err := store.LoadMatch(ctx, "NONE")
	assert.ErrorIs(t, err, ErrMatchNotFound)

	require.NoError(t, store.SaveMatch(ctx, testRecord("PLAY", okey.StatusPlaying, now)))
	require.NoError(t, store.SaveMatch(ctx, testRecord("WONN", okey.StatusVictory, old)))
	require.NoError(t, store.SaveMatch(ctx, testRecord("OVER", okey.StatusGameOver, now)))

	rec, err := store.LoadMatch(ctx, "PLAY")
	require.NoError(t, err)
	assert.Equal(t, okey.StatusPlaying, rec.Status)
	assert.JSONEq(t, `{"status":"playing"}`, string(rec.Data))
	assert.False(t, rec.Finished())

	// Upsert keeps one row per room.
	updated := testRecord("PLAY", okey.StatusPlaying, now.Add(time.Minute))
	updated.Data = []byte(`{"status":"playing","turnId":7}`)
	require.NoError(t, store.SaveMatch(ctx, updated))
	rec, err = store.LoadMatch(ctx, "PLAY")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"playing","turnId":7}`, string(rec.Data))

	active, err := store.LoadActiveMatches(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "PLAY", active[0].RoomCode)

	deleted, err := store.CleanupFinished(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "only the old finished match goes")

	_, err = store.LoadMatch(ctx, "WONN")
	assert.ErrorIs(t, err, ErrMatchNotFound)
	_, err = store.LoadMatch(ctx, "OVER")
	assert.NoError(t, err)

	require.NoError(t, store.DeleteMatch(ctx, "PLAY"))
	assert.ErrorIs(t, store.DeleteMatch(ctx, "PLAY"), ErrMatchNotFound)
}

func TestMemoryStore(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	exerciseStore(t, store, now, now.Add(-48*time.Hour))
}

func TestMemoryStore_SaveCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := testRecord("ABCD", okey.StatusPlaying, time.Now())
	require.NoError(t, store.SaveMatch(ctx, rec))
	rec.Data[0] = 'X'

	loaded, err := store.LoadMatch(ctx, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), loaded.Data[0])
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("okey"),
		postgres.WithUsername("okey"),
		postgres.WithPassword("okey"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	now := time.Now().UTC().Truncate(time.Millisecond)
	exerciseStore(t, NewPostgresStore(db.Pool()), now, now.Add(-48*time.Hour))
}

// recordingStore counts calls and can be made to fail.
type recordingStore struct {
	*MemoryStore
	mu      sync.Mutex
	saves   []string
	deletes []string
	failing bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore()}
}

func (s *recordingStore) SaveMatch(ctx context.Context, rec MatchRecord) error {
	s.mu.Lock()
	s.saves = append(s.saves, rec.RoomCode)
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return errors.New("disk on fire")
	}
	return s.MemoryStore.SaveMatch(ctx, rec)
}

func (s *recordingStore) DeleteMatch(ctx context.Context, roomCode string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, roomCode)
	s.mu.Unlock()
	return s.MemoryStore.DeleteMatch(ctx, roomCode)
}

func (s *recordingStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves), len(s.deletes)
}

func TestSaver_WritesQueuedJobsAndDrainsOnStop(t *testing.T) {
	store := newRecordingStore()
	saver := NewSaver(store, zerolog.Nop())

	saver.Enqueue(testRecord("AAAA", okey.StatusPlaying, time.Now()))
	saver.Enqueue(testRecord("BBBB", okey.StatusPlaying, time.Now()))
	saver.Forget("AAAA")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- saver.Run(ctx) }()

	assert.Eventually(t, func() bool {
		saves, deletes := store.counts()
		return saves == 2 && deletes == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, err := store.LoadMatch(context.Background(), "AAAA")
	assert.ErrorIs(t, err, ErrMatchNotFound)
	_, err = store.LoadMatch(context.Background(), "BBBB")
	assert.NoError(t, err)
}

func TestSaver_DrainsAfterCancel(t *testing.T) {
	store := newRecordingStore()
	saver := NewSaver(store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saver.Enqueue(testRecord("CCCC", okey.StatusPlaying, time.Now()))

	require.NoError(t, saver.Run(ctx))
	saves, _ := store.counts()
	assert.Equal(t, 1, saves)
}

func TestSaver_FullQueueDropsWithoutBlocking(t *testing.T) {
	store := newRecordingStore()
	saver := NewSaver(store, zerolog.Nop())

	for range saveQueueSize + 10 {
		saver.Enqueue(testRecord("DDDD", okey.StatusPlaying, time.Now()))
	}
	assert.Equal(t, saveQueueSize, len(saver.queue))
}

func TestSaver_StoreErrorsAreLoggedNotFatal(t *testing.T) {
	store := newRecordingStore()
	store.failing = true
	saver := NewSaver(store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saver.Enqueue(testRecord("EEEE", okey.StatusPlaying, time.Now()))
	saver.Forget("NOPE")

	assert.NoError(t, saver.Run(ctx))
	saves, deletes := store.counts()
	assert.Equal(t, 1, saves)
	assert.Equal(t, 1, deletes)
}
