package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompetitionID uuid.UUID `db:"competition_id" json:"competitionId"`
	// Nil for system-generated filler entries
	UserID    *uuid.UUID `db:"user_id" json:"userId"`
	Selection string     `db:"selection" json:"selection"`
	ImageURL  *string    `db:"image_url" json:"imageUrl"`
	Seed      int        `db:"seed" json:"seed"`
	IsFiller  bool       `db:"is_filler" json:"isFiller"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

func (e *Entry) IsOwnedBy(userID uuid.UUID) bool {
	return e.UserID != nil && *e.UserID == userID
}
