package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/middleware"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	users "github.com/AdamBeresnev/bracket-battles/internal/user"
	"github.com/google/uuid"
)

type UserService struct {
	store *store.UserStore
	hosts *store.CompetitionStore
}

func NewUserService(store *store.UserStore, hosts *store.CompetitionStore) *UserService {
	return &UserService{store: store, hosts: hosts}
}

// EnsureAdminUser returns the built in administrator, creating it when the database predates it.
func (s *UserService) EnsureAdminUser(ctx context.Context) (*users.User, error) {
	adminID := uuid.MustParse(middleware.SuperUserID)
	user, err := s.store.GetUser(ctx, adminID)
	if err == nil {
		return user, nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		adminUser := &users.User{
			ID:          adminID,
			Email:       "admin@bracket-battles.app",
			DisplayName: "Administrator",
			IsAdmin:     true,
			IsVerified:  true,
			CreatedAt:   time.Now().UTC(),
		}
		err := s.store.CreateUser(ctx, adminUser)
		return adminUser, err
	}
	return nil, err
}

// CreateGuestUser registers a new anonymous voter. Guests are neither admins nor verified,
// so they cannot be drawn as hosts until an admin verifies them.
func (s *UserService) CreateGuestUser(ctx context.Context) (*users.User, error) {
	id := uuid.New()
	guest := &users.User{
		ID:          id,
		Email:       fmt.Sprintf("guest-%s@bracket-battles.app", id),
		DisplayName: "Guest " + id.String()[:8],
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, guest); err != nil {
		return nil, fmt.Errorf("failed to create guest user: %w", err)
	}
	return guest, nil
}

// GetHostHistory lists the competitions a user has hosted, most recent first.
func (s *UserService) GetHostHistory(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return nil, lookupError("user", err)
	}
	ids, err := s.hosts.GetHostHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get host history: %w", err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, lookupError("user", err)
	}
	return user, nil
}

func (s *UserService) GetStats(ctx context.Context, id uuid.UUID) (*users.Stats, error) {
	stats, err := s.store.GetStats(ctx, id)
	if err != nil {
		return nil, lookupError("user stats", err)
	}
	return stats, nil
}

// SetVerified marks whether a user may be picked as a random host. Admin only.
func (s *UserService) SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*users.User, error) {
	if _, err := requireAdmin(ctx, s.store); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, lookupError("user", err)
	}
	user.IsVerified = verified
	if err := s.store.UpdateUserVerified(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
