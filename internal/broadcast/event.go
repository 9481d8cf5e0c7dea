package broadcast

import (
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/google/uuid"
)

type EventType string

const (
	EventCompetitionCreated   EventType = "competition-created"
	EventCompetitionStatus    EventType = "competition-status"
	EventCompetitionCompleted EventType = "competition-completed"
	EventVoteUpdate           EventType = "vote-update"
	EventMatchFinalized       EventType = "match-finalized"
	EventMatchReady           EventType = "match-ready"
)

// Event is published on the topic of its competition once the state change it describes has committed.
type Event struct {
	Type          EventType `json:"type"`
	CompetitionID uuid.UUID `json:"competitionId"`
	Payload       any       `json:"payload"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type VoteUpdate struct {
	MatchID     uuid.UUID `json:"matchId"`
	Entry1Votes int       `json:"entry1Votes"`
	Entry2Votes int       `json:"entry2Votes"`
	TotalVotes  int       `json:"totalVotes"`
}

type MatchFinalized struct {
	MatchID        uuid.UUID  `json:"matchId"`
	WinnerID       uuid.UUID  `json:"winnerId"`
	IsTie          bool       `json:"isTie"`
	CoinFlipWinner *uuid.UUID `json:"coinFlipWinner"`
}

type MatchReady struct {
	MatchID     uuid.UUID `json:"matchId"`
	RoundNumber int       `json:"roundNumber"`
	MatchNumber int       `json:"matchNumber"`
}

type StatusChanged struct {
	From bracket.CompetitionStatus `json:"from"`
	To   bracket.CompetitionStatus `json:"to"`
}

type CompetitionCompleted struct {
	WinnerEntryID uuid.UUID  `json:"winnerEntryId"`
	WinnerUserID  *uuid.UUID `json:"winnerUserId"`
}

func Topic(competitionID uuid.UUID) string {
	return "competition-" + competitionID.String()
}
