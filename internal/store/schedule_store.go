package store

import (
	"context"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const upsertScheduleQuery = `
	INSERT INTO round_schedules (competition_id, round_number, round_name, start_time, end_time)
	VALUES (:competition_id, :round_number, :round_name, :start_time, :end_time)
	ON CONFLICT (competition_id, round_number) DO UPDATE SET
	round_name = excluded.round_name,
	start_time = excluded.start_time,
	end_time = excluded.end_time
`

// UpsertRoundSchedules keeps a single window per (competition, round).
func (s *CompetitionStore) UpsertRoundSchedules(ctx context.Context, tx *sqlx.Tx, schedules []bracket.RoundSchedule) error {
	for i := range schedules {
		if _, err := tx.NamedExecContext(ctx, upsertScheduleQuery, schedules[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetRoundScheduleTx returns nil without error when the round has no schedule.
func (s *CompetitionStore) GetRoundScheduleTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID, round int) (*bracket.RoundSchedule, error) {
	var schedules []bracket.RoundSchedule
	err := tx.SelectContext(ctx, &schedules, tx.Rebind("SELECT * FROM round_schedules WHERE competition_id = ? AND round_number = ?"), competitionID, round)
	if err != nil || len(schedules) == 0 {
		return nil, err
	}
	return &schedules[0], nil
}

func (s *CompetitionStore) GetRoundSchedule(ctx context.Context, competitionID uuid.UUID, round int) (*bracket.RoundSchedule, error) {
	var schedules []bracket.RoundSchedule
	err := s.db.SelectContext(ctx, &schedules, s.db.Rebind("SELECT * FROM round_schedules WHERE competition_id = ? AND round_number = ?"), competitionID, round)
	if err != nil || len(schedules) == 0 {
		return nil, err
	}
	return &schedules[0], nil
}

func (s *CompetitionStore) GetRoundSchedules(ctx context.Context, competitionID uuid.UUID) ([]bracket.RoundSchedule, error) {
	var schedules []bracket.RoundSchedule
	err := s.db.SelectContext(ctx, &schedules, s.db.Rebind("SELECT * FROM round_schedules WHERE competition_id = ? ORDER BY round_number ASC"), competitionID)
	return schedules, err
}
