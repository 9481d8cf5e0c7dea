package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ScheduleService owns the per round voting windows.
type ScheduleService struct {
	db    *sqlx.DB
	store *store.CompetitionStore
	users *store.UserStore
}

func NewScheduleService(db *sqlx.DB, store *store.CompetitionStore, users *store.UserStore) *ScheduleService {
	return &ScheduleService{db: db, store: store, users: users}
}

type RoundScheduleInput struct {
	RoundNumber int
	RoundName   string
	StartTime   time.Time
	EndTime     time.Time
}

// SetRoundSchedule creates or replaces the window of one round. Only the host or an admin may do this.
func (s *ScheduleService) SetRoundSchedule(ctx context.Context, competitionID uuid.UUID, input RoundScheduleInput) (*bracket.RoundSchedule, error) {
	if !input.EndTime.After(input.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidSchedule)
	}

	competition, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	if _, err := requireHostOrAdmin(ctx, s.users, competition); err != nil {
		return nil, err
	}

	rounds := competition.Rounds()
	if input.RoundNumber < 1 || (rounds > 0 && input.RoundNumber > rounds) {
		return nil, fmt.Errorf("%w: round %d is outside the bracket", ErrInvalidSchedule, input.RoundNumber)
	}

	name := strings.TrimSpace(input.RoundName)
	if name == "" {
		name = defaultRoundName(input.RoundNumber, rounds)
	}

	schedule := bracket.RoundSchedule{
		CompetitionID: competitionID,
		RoundNumber:   input.RoundNumber,
		RoundName:     name,
		StartTime:     input.StartTime.UTC(),
		EndTime:       input.EndTime.UTC(),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.UpsertRoundSchedules(ctx, tx, []bracket.RoundSchedule{schedule}); err != nil {
		return nil, fmt.Errorf("failed to save round schedule: %w", err)
	}

	return &schedule, tx.Commit()
}

func (s *ScheduleService) GetRoundSchedules(ctx context.Context, competitionID uuid.UUID) ([]bracket.RoundSchedule, error) {
	return s.store.GetRoundSchedules(ctx, competitionID)
}

// IsVotingOpen reports whether votes for the round are accepted at now. A scheduled round is
// open inside its window. A round without a schedule is open while any of its matches is voting.
func (s *ScheduleService) IsVotingOpen(ctx context.Context, competitionID uuid.UUID, round int, now time.Time) (bool, error) {
	schedule, err := s.store.GetRoundSchedule(ctx, competitionID, round)
	if err != nil {
		return false, fmt.Errorf("failed to get round schedule: %w", err)
	}

	if schedule == nil {
		matches, err := s.store.GetRoundMatches(ctx, competitionID, round)
		if err != nil {
			return false, fmt.Errorf("failed to get round matches: %w", err)
		}
		return slices.ContainsFunc(matches, func(m bracket.Match) bool { return m.Status == bracket.MatchVoting }), nil
	}

	return checkWindow(schedule, now) == nil, nil
}

// checkWindowTx reads the schedule inside tx on every call since schedules may be edited at any time.
func (s *ScheduleService) checkWindowTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID, round int, now time.Time) error {
	schedule, err := s.store.GetRoundScheduleTx(ctx, tx, competitionID, round)
	if err != nil {
		return fmt.Errorf("failed to get round schedule: %w", err)
	}
	return checkWindow(schedule, now)
}

// checkWindow accepts now when start <= now <= end, or when there is no schedule at all.
func checkWindow(schedule *bracket.RoundSchedule, now time.Time) error {
	if schedule == nil || schedule.Contains(now) {
		return nil
	}
	if now.Before(schedule.StartTime) {
		return &RoundWindowError{
			Err:       ErrRoundNotStarted,
			Round:     schedule.RoundNumber,
			RoundName: schedule.RoundName,
			Boundary:  schedule.StartTime,
		}
	}
	return &RoundWindowError{
		Err:       ErrRoundEnded,
		Round:     schedule.RoundNumber,
		RoundName: schedule.RoundName,
		Boundary:  schedule.EndTime,
	}
}

// buildRoundSchedules lays out consecutive windows of length d for every round, starting at start.
func buildRoundSchedules(competitionID uuid.UUID, bracketSize int, start time.Time, d time.Duration) []bracket.RoundSchedule {
	rounds := bracket.RoundCount(bracketSize)
	schedules := make([]bracket.RoundSchedule, 0, rounds)
	for r := 1; r <= rounds; r++ {
		roundStart := start.Add(time.Duration(r-1) * d)
		schedules = append(schedules, bracket.RoundSchedule{
			CompetitionID: competitionID,
			RoundNumber:   r,
			RoundName:     bracket.RoundLabel(r, rounds),
			StartTime:     roundStart,
			EndTime:       roundStart.Add(d),
		})
	}
	return schedules
}

func defaultRoundName(round, rounds int) string {
	if rounds == 0 {
		return fmt.Sprintf("Round %d", round)
	}
	return bracket.RoundLabel(round, rounds)
}
