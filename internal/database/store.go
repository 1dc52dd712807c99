// Package database is the progress store: users, topics, progress records
// and achievements over sqlx, on SQLite or PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/tutorbot/internal/logger"
	"github.com/example/tutorbot/pkg/models"
)

// Evaluator decides which achievements a snapshot has newly earned
type Evaluator interface {
	Evaluate(s models.Snapshot) []models.Achievement
}

// ReviewPlanner schedules a topic's next review
type ReviewPlanner interface {
	NextReview(timesPracticed int, mastery float64, now time.Time) time.Time
}

// Store owns the connection and serializes every multi-step change in a transaction
type Store struct {
	db        *sqlx.DB
	evaluator Evaluator
	planner   ReviewPlanner
	loc       *time.Location
	now       func() time.Time
	log       *logger.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the timezone calendar days are counted in
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

func NewStore(db *sqlx.DB, evaluator Evaluator, planner ReviewPlanner, opts ...Option) *Store {
	s := &Store{
		db:        db,
		evaluator: evaluator,
		planner:   planner,
		loc:       time.UTC,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying connection
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) isPostgres() bool {
	return s.db.DriverName() == "postgres"
}

// withTx runs fn in a transaction, rolling back on any error
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// readTx is withTx for multi-statement reads that must see one state
func (s *Store) readTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	// SQLite runs on a single connection, so any transaction is already isolated
	if !s.isPostgres() {
		return s.withTx(ctx, fn)
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(tx)
}

// forUpdate locks the selected rows where the driver supports it
func (s *Store) forUpdate() string {
	if s.isPostgres() {
		return " FOR UPDATE"
	}
	return ""
}

func get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// q rebinds ? placeholders for the active driver
func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}
