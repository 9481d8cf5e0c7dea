package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CompetitionStore persists competitions together with everything they own:
// entries, matches, round schedules and host history.
type CompetitionStore struct {
	db *sqlx.DB
}

func NewCompetitionStore(db *sqlx.DB) *CompetitionStore {
	return &CompetitionStore{db: db}
}

const (
	createCompetitionQuery = `
		INSERT INTO competitions (id, slug, title, topic, host_id, status, entry_deadline, voting_start, bracket_size, created_at, updated_at)
		VALUES (:id, :slug, :title, :topic, :host_id, :status, :entry_deadline, :voting_start, :bracket_size, :created_at, :updated_at)
	`
	updateCompetitionQuery = `
		UPDATE competitions SET
		status = :status,
		voting_start = :voting_start,
		bracket_size = :bracket_size,
		winner_entry_id = :winner_entry_id,
		winner_user_id = :winner_user_id,
		completed_at = :completed_at,
		updated_at = :updated_at
		WHERE id = :id
	`
	recordHostQuery = `
		INSERT INTO host_history (user_id, competition_id, created_at) VALUES (?, ?, ?)
	`
)

func (s *CompetitionStore) CreateCompetition(ctx context.Context, tx *sqlx.Tx, competition *bracket.Competition) error {
	_, err := tx.NamedExecContext(ctx, createCompetitionQuery, competition)
	return err
}

func (s *CompetitionStore) UpdateCompetition(ctx context.Context, tx *sqlx.Tx, competition *bracket.Competition) error {
	_, err := tx.NamedExecContext(ctx, updateCompetitionQuery, competition)
	return err
}

func (s *CompetitionStore) GetCompetition(ctx context.Context, id uuid.UUID) (*bracket.Competition, error) {
	var competition bracket.Competition
	err := s.db.GetContext(ctx, &competition, s.db.Rebind("SELECT * FROM competitions WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &competition, nil
}

// GetCompetitionTx reads the competition row inside tx without locking it.
func (s *CompetitionStore) GetCompetitionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Competition, error) {
	var competition bracket.Competition
	err := tx.GetContext(ctx, &competition, tx.Rebind("SELECT * FROM competitions WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &competition, nil
}

// GetCompetitionForUpdate reads the competition row inside tx and locks it until tx ends.
func (s *CompetitionStore) GetCompetitionForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Competition, error) {
	var competition bracket.Competition
	err := tx.GetContext(ctx, &competition, lockRow(tx, "SELECT * FROM competitions WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &competition, nil
}

func (s *CompetitionStore) ListCompetitionsByStatus(ctx context.Context, status bracket.CompetitionStatus) ([]bracket.Competition, error) {
	var competitions []bracket.Competition
	err := s.db.SelectContext(ctx, &competitions, s.db.Rebind("SELECT * FROM competitions WHERE status = ? ORDER BY created_at ASC"), status)
	return competitions, err
}

// ListRecentlyCompleted returns up to limit completed competitions, most recently completed first.
func (s *CompetitionStore) ListRecentlyCompleted(ctx context.Context, limit int) ([]bracket.Competition, error) {
	var competitions []bracket.Competition
	err := s.db.SelectContext(ctx, &competitions, s.db.Rebind(`
		SELECT * FROM competitions
		WHERE status = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT ?`), bracket.CompetitionCompleted, limit)
	return competitions, err
}

func (s *CompetitionStore) RecordHost(ctx context.Context, tx *sqlx.Tx, userID, competitionID uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(recordHostQuery), userID, competitionID, at)
	return err
}

func (s *CompetitionStore) GetHostHistory(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind("SELECT competition_id FROM host_history WHERE user_id = ? ORDER BY created_at DESC"), userID)
	return ids, err
}

// lockRow appends a row lock on drivers that support it and rebinds the query for tx.
// SQLite has no row locks; its immediate transactions already hold the database write lock.
func lockRow(tx *sqlx.Tx, query string) string {
	if tx.DriverName() == "postgres" {
		query += " FOR UPDATE"
	}
	return tx.Rebind(query)
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
