package bracket

import (
	"time"

	"github.com/google/uuid"
)

type CompetitionStatus string

const (
	CompetitionUpcoming         CompetitionStatus = "upcoming"
	CompetitionAcceptingEntries CompetitionStatus = "accepting_entries"
	CompetitionVoting           CompetitionStatus = "voting"
	CompetitionCompleted        CompetitionStatus = "completed"
)

type Competition struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	Slug          string            `db:"slug" json:"slug"`
	Title         string            `db:"title" json:"title"`
	Topic         string            `db:"topic" json:"topic"`
	HostID        *uuid.UUID        `db:"host_id" json:"hostId"`
	Status        CompetitionStatus `db:"status" json:"status"`
	EntryDeadline time.Time         `db:"entry_deadline" json:"entryDeadline"`
	VotingStart   *time.Time        `db:"voting_start" json:"votingStart"`
	BracketSize   int               `db:"bracket_size" json:"bracketSize"`

	WinnerEntryID *uuid.UUID `db:"winner_entry_id" json:"winnerEntryId"`
	WinnerUserID  *uuid.UUID `db:"winner_user_id" json:"winnerUserId"`

	CompletedAt *time.Time `db:"completed_at" json:"completedAt"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Rounds is the number of rounds of the seeded bracket, 0 before seeding.
func (c *Competition) Rounds() int {
	if c.BracketSize < 2 {
		return 0
	}
	return RoundCount(c.BracketSize)
}

func (c *Competition) IsHost(userID uuid.UUID) bool {
	return c.HostID != nil && *c.HostID == userID
}
