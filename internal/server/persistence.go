package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"okey-server/internal/okey"
)

var ErrMatchNotFound = errors.New("MATCH_NOT_FOUND: No saved match for this room")

// MatchRecord is one room's match snapshot as stored.
type MatchRecord struct {
	RoomCode  string
	Status    okey.Status
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r MatchRecord) Finished() bool {
	return r.Status == okey.StatusVictory || r.Status == okey.StatusGameOver
}

// MatchStore saves and loads match snapshots by room code.
type MatchStore interface {
	SaveMatch(ctx context.Context, rec MatchRecord) error
	LoadMatch(ctx context.Context, roomCode string) (MatchRecord, error)
	LoadActiveMatches(ctx context.Context) ([]MatchRecord, error)
	DeleteMatch(ctx context.Context, roomCode string) error
	CleanupFinished(ctx context.Context, olderThan time.Duration) (int, error)
}

// ============================================================================
// POSTGRES
// ============================================================================

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveMatch(ctx context.Context, rec MatchRecord) error {
	query := `
		INSERT INTO matches (room_code, status, match_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_code) DO UPDATE
		SET status = EXCLUDED.status, match_data = EXCLUDED.match_data, updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, rec.RoomCode, string(rec.Status), rec.Data, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save match %s: %w", rec.RoomCode, err)
	}
	return nil
}

func (s *PostgresStore) LoadMatch(ctx context.Context, roomCode string) (MatchRecord, error) {
	query := `
		SELECT room_code, status, match_data, created_at, updated_at
		FROM matches WHERE room_code = $1
	`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, roomCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return MatchRecord{}, ErrMatchNotFound
	}
	if err != nil {
		return MatchRecord{}, fmt.Errorf("failed to load match %s: %w", roomCode, err)
	}
	return rec, nil
}

func (s *PostgresStore) LoadActiveMatches(ctx context.Context) ([]MatchRecord, error) {
	query := `
		SELECT room_code, status, match_data, created_at, updated_at
		FROM matches
		WHERE status = $1
		ORDER BY updated_at DESC
	`

	rows, err := s.pool.Query(ctx, query, string(okey.StatusPlaying))
	if err != nil {
		return nil, fmt.Errorf("failed to query active matches: %w", err)
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) DeleteMatch(ctx context.Context, roomCode string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM matches WHERE room_code = $1`, roomCode)
	if err != nil {
		return fmt.Errorf("failed to delete match %s: %w", roomCode, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMatchNotFound
	}
	return nil
}

// CleanupFinished deletes finished matches not touched for olderThan.
func (s *PostgresStore) CleanupFinished(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `DELETE FROM matches WHERE status = ANY($1) AND updated_at < $2`

	finished := []string{string(okey.StatusVictory), string(okey.StatusGameOver)}
	tag, err := s.pool.Exec(ctx, query, finished, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup finished matches: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (MatchRecord, error) {
	var rec MatchRecord
	var status string
	if err := row.Scan(&rec.RoomCode, &status, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return MatchRecord{}, err
	}
	rec.Status = okey.Status(status)
	return rec, nil
}

// ============================================================================
// MEMORY
// ============================================================================

// MemoryStore keeps records in process. It backs tests and servers started
// without DATABASE_URL.
type MemoryStore struct {
	records map[string]MatchRecord
	now     func() time.Time
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]MatchRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) SaveMatch(ctx context.Context, rec MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.RoomCode]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	rec.Data = append([]byte(nil), rec.Data...)
	s.records[rec.RoomCode] = rec
	return nil
}

func (s *MemoryStore) LoadMatch(ctx context.Context, roomCode string) (MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[roomCode]
	if !ok {
		return MatchRecord{}, ErrMatchNotFound
	}
	return rec, nil
}

func (s *MemoryStore) LoadActiveMatches(ctx context.Context) ([]MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []MatchRecord
	for _, rec := range s.records {
		if rec.Status == okey.StatusPlaying {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

func (s *MemoryStore) DeleteMatch(ctx context.Context, roomCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[roomCode]; !ok {
		return ErrMatchNotFound
	}
	delete(s.records, roomCode)
	return nil
}

func (s *MemoryStore) CleanupFinished(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	deleted := 0
	for code, rec := range s.records {
		if rec.Finished() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, code)
			deleted++
		}
	}
	return deleted, nil
}

// ============================================================================
// BACKGROUND SAVER
// ============================================================================

const saveQueueSize = 256

// Persister accepts snapshots and deletions without blocking the caller.
type Persister interface {
	Enqueue(rec MatchRecord)
	Forget(roomCode string)
}

type saveJob struct {
	rec    MatchRecord
	delete bool
}

// Saver writes records queued by room mutations so that rooms never wait on
// the database. A full queue drops the record; the periodic save catches up.
type Saver struct {
	store MatchStore
	queue chan saveJob
	log   zerolog.Logger
}

func NewSaver(store MatchStore, log zerolog.Logger) *Saver {
	return &Saver{
		store: store,
		queue: make(chan saveJob, saveQueueSize),
		log:   log,
	}
}

func (s *Saver) Enqueue(rec MatchRecord) {
	s.push(saveJob{rec: rec})
}

func (s *Saver) Forget(roomCode string) {
	s.push(saveJob{rec: MatchRecord{RoomCode: roomCode}, delete: true})
}

func (s *Saver) push(job saveJob) {
	select {
	case s.queue <- job:
	default:
		s.log.Warn().Str("room", job.rec.RoomCode).Bool("delete", job.delete).Msg("Save queue full, dropping job")
	}
}

// Run drains the queue until ctx ends, then writes what is left. Each write
// has its own timeout independent of ctx.
func (s *Saver) Run(ctx context.Context) error {
	for {
		select {
		case job := <-s.queue:
			s.apply(job)
		case <-ctx.Done():
			s.drain()
			return nil
		}
	}
}

func (s *Saver) drain() {
	for {
		select {
		case job := <-s.queue:
			s.apply(job)
		default:
			return
		}
	}
}

func (s *Saver) apply(job saveJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if job.delete {
		err := s.store.DeleteMatch(ctx, job.rec.RoomCode)
		if err != nil && !errors.Is(err, ErrMatchNotFound) {
			s.log.Error().Err(err).Str("room", job.rec.RoomCode).Msg("Delete failed")
		}
		return
	}
	if err := s.store.SaveMatch(ctx, job.rec); err != nil {
		s.log.Error().Err(err).Str("room", job.rec.RoomCode).Msg("Save failed")
	}
}
