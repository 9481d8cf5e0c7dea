package store

import (
	"context"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	createMatchQuery = `
		INSERT INTO matches (id, competition_id, round_number, match_number, entry1_id, entry2_id, entry1_votes, entry2_votes, total_votes, status, created_at)
		VALUES (:id, :competition_id, :round_number, :match_number, :entry1_id, :entry2_id, :entry1_votes, :entry2_votes, :total_votes, :status, :created_at)
	`
	updateMatchQuery = `
		UPDATE matches SET
		entry1_id = :entry1_id,
		entry2_id = :entry2_id,
		status = :status,
		winner_id = :winner_id,
		is_tie = :is_tie,
		coin_flip_winner = :coin_flip_winner
		WHERE id = :id
	`
	updateTallyQuery = `
		UPDATE matches SET entry1_votes = ?, entry2_votes = ?, total_votes = ? WHERE id = ?
	`
)

func (s *CompetitionStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, createMatchQuery, matches)
	return err
}

// UpdateMatch writes slots, status and result. Vote counts are only written through UpdateMatchTally.
func (s *CompetitionStore) UpdateMatch(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	_, err := tx.NamedExecContext(ctx, updateMatchQuery, match)
	return err
}

func (s *CompetitionStore) UpdateMatchTally(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID, tally bracket.Tally) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(updateTallyQuery), tally.Entry1Votes, tally.Entry2Votes, tally.TotalVotes, matchID)
	return err
}

func (s *CompetitionStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	err := s.db.GetContext(ctx, &match, s.db.Rebind("SELECT * FROM matches WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// GetMatchForUpdate reads the match row inside tx and locks it until tx ends.
func (s *CompetitionStore) GetMatchForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	err := tx.GetContext(ctx, &match, lockRow(tx, "SELECT * FROM matches WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// GetMatchAtForUpdate locks the match at a bracket position.
func (s *CompetitionStore) GetMatchAtForUpdate(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID, round, number int) (*bracket.Match, error) {
	var match bracket.Match
	err := tx.GetContext(ctx, &match, lockRow(tx, "SELECT * FROM matches WHERE competition_id = ? AND round_number = ? AND match_number = ?"), competitionID, round, number)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *CompetitionStore) GetMatches(ctx context.Context, competitionID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, s.db.Rebind("SELECT * FROM matches WHERE competition_id = ? ORDER BY round_number ASC, match_number ASC"), competitionID)
	return matches, err
}

func (s *CompetitionStore) GetRoundMatches(ctx context.Context, competitionID uuid.UUID, round int) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, s.db.Rebind("SELECT * FROM matches WHERE competition_id = ? AND round_number = ? ORDER BY match_number ASC"), competitionID, round)
	return matches, err
}
