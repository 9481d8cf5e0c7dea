package store

import (
	"context"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type VoteStore struct {
	db *sqlx.DB
}

func NewVoteStore(db *sqlx.DB) *VoteStore {
	return &VoteStore{db: db}
}

const (
	upsertVoteQuery = `
		INSERT INTO votes (id, match_id, user_id, entry_id, created_at, updated_at)
		VALUES (:id, :match_id, :user_id, :entry_id, :created_at, :updated_at)
		ON CONFLICT (match_id, user_id) DO UPDATE SET
		entry_id = excluded.entry_id,
		updated_at = excluded.updated_at
	`
	countVotesQuery = `
		SELECT entry_id, COUNT(*) AS vote_count
		FROM votes
		WHERE match_id = ?
		GROUP BY entry_id
	`
	userVotesQuery = `
		SELECT v.* FROM votes v
		JOIN matches m ON v.match_id = m.id
		WHERE m.competition_id = ? AND v.user_id = ?
	`
)

type entryCount struct {
	EntryID   uuid.UUID `db:"entry_id"`
	VoteCount int       `db:"vote_count"`
}

// UpsertVote stores the vote, replacing the entry of an existing (match, user) vote.
// The (match_id, user_id) unique key guarantees a single row even without a surrounding lock.
func (s *VoteStore) UpsertVote(ctx context.Context, tx *sqlx.Tx, vote *bracket.Vote) error {
	_, err := tx.NamedExecContext(ctx, upsertVoteQuery, vote)
	return err
}

// GetVoteTx returns nil without error when the user has not voted on the match.
func (s *VoteStore) GetVoteTx(ctx context.Context, tx *sqlx.Tx, matchID, userID uuid.UUID) (*bracket.Vote, error) {
	var votes []bracket.Vote
	err := tx.SelectContext(ctx, &votes, tx.Rebind("SELECT * FROM votes WHERE match_id = ? AND user_id = ?"), matchID, userID)
	if err != nil || len(votes) == 0 {
		return nil, err
	}
	return &votes[0], nil
}

// CountVotesTx groups the stored votes of a match by entry.
func (s *VoteStore) CountVotesTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []entryCount
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(countVotesQuery), matchID); err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.EntryID] = row.VoteCount
	}
	return counts, nil
}

func (s *VoteStore) GetVotesForMatch(ctx context.Context, matchID uuid.UUID) ([]bracket.Vote, error) {
	var votes []bracket.Vote
	err := s.db.SelectContext(ctx, &votes, s.db.Rebind("SELECT * FROM votes WHERE match_id = ? ORDER BY created_at ASC"), matchID)
	return votes, err
}

func (s *VoteStore) GetUserVotes(ctx context.Context, competitionID, userID uuid.UUID) ([]bracket.Vote, error) {
	var votes []bracket.Vote
	err := s.db.SelectContext(ctx, &votes, s.db.Rebind(userVotesQuery), competitionID, userID)
	return votes, err
}
