package bracket

import (
	"time"

	"github.com/google/uuid"
)

// Vote is unique per (match, user); a later vote replaces the earlier choice.
type Vote struct {
	ID        uuid.UUID `db:"id" json:"id"`
	MatchID   uuid.UUID `db:"match_id" json:"matchId"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	EntryID   uuid.UUID `db:"entry_id" json:"entryId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Tally is the per-slot vote count of a match, always derived from the stored votes.
type Tally struct {
	Entry1Votes int `json:"entry1Votes"`
	Entry2Votes int `json:"entry2Votes"`
	TotalVotes  int `json:"totalVotes"`
}
