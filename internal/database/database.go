package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"okey-server/internal/database/migrations"
)

// Service is the connection to the match database.
type Service interface {
	// Health returns a map of health status information.
	Health(ctx context.Context) map[string]string

	Pool() *pgxpool.Pool

	Close()
}

type service struct {
	pool *pgxpool.Pool
}

// New migrates the database at url and opens a pool to it.
func New(ctx context.Context, url string) (Service, error) {
	if err := migrations.Up(ctx, url); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &service{pool: pool}, nil
}

func (s *service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	ps := s.pool.Stat()
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["total_connections"] = strconv.Itoa(int(ps.TotalConns()))
	stats["idle_connections"] = strconv.Itoa(int(ps.IdleConns()))
	stats["acquired_connections"] = strconv.Itoa(int(ps.AcquiredConns()))
	stats["max_connections"] = strconv.Itoa(int(ps.MaxConns()))

	if ps.EmptyAcquireCount() > 1000 {
		stats["message"] = "The database is experiencing heavy load."
	}
	return stats
}

func (s *service) Close() {
	s.pool.Close()
}
