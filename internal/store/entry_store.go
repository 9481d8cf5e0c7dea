package store

import (
	"context"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	createEntryQuery = `
		INSERT INTO entries (id, competition_id, user_id, selection, image_url, seed, is_filler, created_at)
		VALUES (:id, :competition_id, :user_id, :selection, :image_url, :seed, :is_filler, :created_at)
	`
	updateEntryQuery = `
		UPDATE entries SET
		selection = :selection,
		image_url = :image_url
		WHERE id = :id
	`
)

func (s *CompetitionStore) CreateEntries(ctx context.Context, tx *sqlx.Tx, entries []bracket.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, createEntryQuery, entries)
	return err
}

func (s *CompetitionStore) UpdateEntry(ctx context.Context, tx *sqlx.Tx, entry *bracket.Entry) error {
	_, err := tx.NamedExecContext(ctx, updateEntryQuery, entry)
	return err
}

func (s *CompetitionStore) GetEntry(ctx context.Context, id uuid.UUID) (*bracket.Entry, error) {
	var entry bracket.Entry
	err := s.db.GetContext(ctx, &entry, s.db.Rebind("SELECT * FROM entries WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *CompetitionStore) GetEntryTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Entry, error) {
	var entry bracket.Entry
	err := tx.GetContext(ctx, &entry, lockRow(tx, "SELECT * FROM entries WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *CompetitionStore) GetEntryByUser(ctx context.Context, competitionID, userID uuid.UUID) (*bracket.Entry, error) {
	var entry bracket.Entry
	err := s.db.GetContext(ctx, &entry, s.db.Rebind("SELECT * FROM entries WHERE competition_id = ? AND user_id = ?"), competitionID, userID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *CompetitionStore) HasEntryByUserTx(ctx context.Context, tx *sqlx.Tx, competitionID, userID uuid.UUID) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, tx.Rebind("SELECT COUNT(*) FROM entries WHERE competition_id = ? AND user_id = ?"), competitionID, userID)
	return count > 0, err
}

func (s *CompetitionStore) GetEntries(ctx context.Context, competitionID uuid.UUID) ([]bracket.Entry, error) {
	var entries []bracket.Entry
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind("SELECT * FROM entries WHERE competition_id = ? ORDER BY seed ASC"), competitionID)
	return entries, err
}

func (s *CompetitionStore) GetEntriesTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID) ([]bracket.Entry, error) {
	var entries []bracket.Entry
	err := tx.SelectContext(ctx, &entries, tx.Rebind("SELECT * FROM entries WHERE competition_id = ? ORDER BY seed ASC"), competitionID)
	return entries, err
}

// MaxSeedTx is the highest seed position taken in the competition, 0 when there are no entries.
func (s *CompetitionStore) MaxSeedTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID) (int, error) {
	var seed int
	err := tx.GetContext(ctx, &seed, tx.Rebind("SELECT COALESCE(MAX(seed), 0) FROM entries WHERE competition_id = ?"), competitionID)
	return seed, err
}

// GetEntrantUserIDs lists the owners of the real (non-filler) entries of a competition.
func (s *CompetitionStore) GetEntrantUserIDs(ctx context.Context, competitionID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT DISTINCT user_id FROM entries
		WHERE competition_id = ? AND user_id IS NOT NULL AND is_filler = ?`), competitionID, false)
	return ids, err
}
