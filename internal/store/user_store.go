package store

import (
	"context"
	"fmt"

	users "github.com/AdamBeresnev/bracket-battles/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UserStore struct {
	db *sqlx.DB
}

// Stat columns that may be incremented
type Stat string

const (
	StatCompetitions Stat = "total_competitions"
	StatWins         Stat = "total_wins"
	StatVotesCast    Stat = "total_votes_cast"
	StatTimesHosted  Stat = "times_hosted"
)

const (
	getUserQuery    = "SELECT * FROM users WHERE id = ?"
	createUserQuery = `
		INSERT INTO users (id, email, display_name, is_admin, is_verified, avatar_url, created_at) VALUES
		(:id, :email, :display_name, :is_admin, :is_verified, :avatar_url, :created_at)
	`
	createStatsQuery = `
		INSERT INTO user_stats (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING
	`
	updateUserVerifiedQuery = `
		UPDATE users SET is_verified = :is_verified WHERE id = :id
	`
)

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(getUserQuery), id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetUsers(ctx context.Context, ids []uuid.UUID) ([]users.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM users WHERE id IN (?) ORDER BY created_at ASC", ids)
	if err != nil {
		return nil, err
	}
	var result []users.User
	err = s.db.SelectContext(ctx, &result, s.db.Rebind(query), args...)
	return result, err
}

func (s *UserStore) CreateUser(ctx context.Context, user *users.User) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, createUserQuery, user); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(createStatsQuery), user.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *UserStore) UpdateUserVerified(ctx context.Context, user *users.User) error {
	_, err := s.db.NamedExecContext(ctx, updateUserVerifiedQuery, user)
	return err
}

func (s *UserStore) GetStats(ctx context.Context, userID uuid.UUID) (*users.Stats, error) {
	var stats users.Stats
	err := s.db.GetContext(ctx, &stats, s.db.Rebind("SELECT * FROM user_stats WHERE user_id = ?"), userID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// IncrementStat bumps a counter of the user's stats row, creating the row if needed.
func (s *UserStore) IncrementStat(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, stat Stat) error {
	switch stat {
	case StatCompetitions, StatWins, StatVotesCast, StatTimesHosted:
	default:
		return fmt.Errorf("unknown stat %q", stat)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(createStatsQuery), userID); err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE user_stats SET %s = %s + 1 WHERE user_id = ?", stat, stat)
	_, err := tx.ExecContext(ctx, tx.Rebind(query), userID)
	return err
}
