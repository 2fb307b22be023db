// Package journal records every applied actuation in SQLite so operators
// can see what the relay did and why.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Page size bounds for Recent.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// ErrNotFound is returned by Latest when nothing has been journaled for a pin.
var ErrNotFound = errors.New("journal: no actuation recorded")

// Entry is one applied actuation.
type Entry struct {
	ID        int64     `json:"id"`
	Pin       string    `json:"pin"`
	State     string    `json:"state"`
	Command   string    `json:"command"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteRepository stores entries in the actuations table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e. ID is filled from the insert; CreatedAt defaults to now.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO actuations (pin, state, command, topic, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Pin, e.State, e.Command, e.Topic, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting actuation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading actuation id: %w", err)
	}
	e.ID = id
	return nil
}

// Recent returns up to limit entries, newest first. A limit of zero or less
// means 50; anything above 200 is clamped.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, pin, state, command, topic, created_at FROM actuations ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying actuations: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actuations: %w", err)
	}
	return entries, nil
}

// Latest returns the newest entry for pin, or ErrNotFound.
func (r *SQLiteRepository) Latest(ctx context.Context, pin string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, pin, state, command, topic, created_at FROM actuations WHERE pin = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		pin,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Prune deletes entries created before olderThan and reports how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM actuations WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning actuations: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var created int64
	if err := s.Scan(&e.ID, &e.Pin, &e.State, &e.Command, &e.Topic, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning actuation: %w", err)
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	return &e, nil
}
