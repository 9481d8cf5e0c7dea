package bracket

import (
	"time"

	"github.com/google/uuid"
)

type RoundSchedule struct {
	CompetitionID uuid.UUID `db:"competition_id" json:"competitionId"`
	RoundNumber   int       `db:"round_number" json:"roundNumber"`
	RoundName     string    `db:"round_name" json:"roundName"`
	StartTime     time.Time `db:"start_time" json:"startTime"`
	EndTime       time.Time `db:"end_time" json:"endTime"`
}

// Contains reports whether t falls inside the window, both boundaries included.
func (s *RoundSchedule) Contains(t time.Time) bool {
	return !t.Before(s.StartTime) && !t.After(s.EndTime)
}
