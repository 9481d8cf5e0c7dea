package users

import (
	"time"

	"github.com/google/uuid"
)

type ContextKey string

const UserKey ContextKey = "user"

type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"displayName"`
	IsAdmin     bool      `db:"is_admin" json:"isAdmin"`
	IsVerified  bool      `db:"is_verified" json:"isVerified"`
	AvatarURL   *string   `db:"avatar_url" json:"avatarUrl"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type Stats struct {
	UserID            uuid.UUID `db:"user_id" json:"userId"`
	TotalCompetitions int       `db:"total_competitions" json:"totalCompetitions"`
	TotalWins         int       `db:"total_wins" json:"totalWins"`
	TotalVotesCast    int       `db:"total_votes_cast" json:"totalVotesCast"`
	TimesHosted       int       `db:"times_hosted" json:"timesHosted"`
}
