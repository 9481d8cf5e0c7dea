package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
)

// Domain errors. Callers match them with errors.Is; none of them is retried by the engine.
var (
	ErrNotFound            = errors.New("requested resource not found")
	ErrInvalidTransition   = errors.New("invalid competition status transition")
	ErrInsufficientEntries = errors.New("at least 2 entries are required to seed the bracket")
	ErrInvalidBracketSize  = bracket.ErrInvalidBracketSize
	ErrDuplicateEntry      = errors.New("you have already submitted an entry")
	ErrDeadlinePassed      = errors.New("entry deadline has passed")
	ErrMatchNotVotable     = errors.New("this match is not currently open for voting")
	ErrInvalidEntry        = errors.New("invalid entry for this match")
	ErrRoundNotStarted     = errors.New("voting for this round has not started yet")
	ErrRoundEnded          = errors.New("voting for this round has ended")
	ErrForbidden           = errors.New("operation not allowed for the current user")
	ErrNoEligibleHosts     = errors.New("no eligible hosts available")
	ErrInvalidSchedule     = errors.New("invalid round schedule")

	ErrNotAcceptingEntries = errors.New("competition is not accepting entries yet")
	ErrMatchNotReady       = errors.New("match cannot be finalized in its current state")
	ErrInvalidCompetition  = errors.New("competition title, topic and entry deadline are required")
	ErrEmptySelection      = errors.New("entry selection is required")
	ErrInvalidImage        = errors.New("invalid entry image")
	ErrUploadsDisabled     = errors.New("image uploads are not configured")
)

// RoundWindowError rejects a vote outside the round window and carries the boundary to show the user.
type RoundWindowError struct {
	Err       error
	Round     int
	RoundName string
	Boundary  time.Time
}

func (e *RoundWindowError) Error() string {
	if errors.Is(e.Err, ErrRoundNotStarted) {
		return fmt.Sprintf("Voting for %s has not started yet. Voting opens at %s.", e.RoundName, e.Boundary.Format(time.RFC1123))
	}
	return fmt.Sprintf("Voting for %s has ended. Voting closed at %s.", e.RoundName, e.Boundary.Format(time.RFC1123))
}

func (e *RoundWindowError) Unwrap() error {
	return e.Err
}

func transitionError(from, to bracket.CompetitionStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
