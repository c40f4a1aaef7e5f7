package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Each profile is one JSONB
// document in the profiles table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM profiles WHERE id = $1`,
		id,
	).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var u User
	if err := json.Unmarshal(record, &u); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	u.ID = id
	return &u, nil
}

func (s *PostgresStore) Update(ctx context.Context, user User) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if user.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	record, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", user.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (id, record, updated_at)
		 VALUES ($1, $2::jsonb, NOW())
		 ON CONFLICT (id)
		 DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`,
		user.ID,
		string(record),
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}
