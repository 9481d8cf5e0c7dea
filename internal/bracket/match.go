package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchVoting    MatchStatus = "voting"
	MatchCompleted MatchStatus = "completed"
)

type Match struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompetitionID uuid.UUID `db:"competition_id" json:"competitionId"`

	// Position in the bracket, round 1 is the first round
	RoundNumber int `db:"round_number" json:"roundNumber"`
	MatchNumber int `db:"match_number" json:"matchNumber"`

	Entry1ID *uuid.UUID `db:"entry1_id" json:"entry1Id"`
	Entry2ID *uuid.UUID `db:"entry2_id" json:"entry2Id"`

	Entry1Votes int         `db:"entry1_votes" json:"entry1Votes"`
	Entry2Votes int         `db:"entry2_votes" json:"entry2Votes"`
	TotalVotes  int         `db:"total_votes" json:"totalVotes"`
	Status      MatchStatus `db:"status" json:"status"`

	WinnerID       *uuid.UUID `db:"winner_id" json:"winnerId"`
	IsTie          bool       `db:"is_tie" json:"isTie"`
	CoinFlipWinner *uuid.UUID `db:"coin_flip_winner" json:"coinFlipWinner"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func (m *Match) HasBothEntries() bool {
	return m.Entry1ID != nil && m.Entry2ID != nil
}

// Slot returns 1 or 2 when entryID occupies that slot, 0 otherwise.
func (m *Match) Slot(entryID uuid.UUID) int {
	switch {
	case m.Entry1ID != nil && *m.Entry1ID == entryID:
		return 1
	case m.Entry2ID != nil && *m.Entry2ID == entryID:
		return 2
	}
	return 0
}

func (m *Match) SetSlot(slot int, entryID uuid.UUID) {
	id := entryID
	if slot == 1 {
		m.Entry1ID = &id
	} else {
		m.Entry2ID = &id
	}
}
