package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/broadcast"
	"github.com/AdamBeresnev/bracket-battles/internal/middleware"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	users "github.com/AdamBeresnev/bracket-battles/internal/user"
	"github.com/google/uuid"
)

// Publisher delivers events after the mutation they describe has committed.
// Implementations must not block and must not report failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, event broadcast.Event)
}

type Option func(*options)

type options struct {
	randIntN      func(n int) int
	roundDuration time.Duration
}

// WithRandom replaces the source used for coin flips and host draws. f must return a value in [0, n).
func WithRandom(f func(n int) int) Option {
	return func(o *options) {
		o.randIntN = f
	}
}

// WithRoundDuration makes seeding create back to back voting windows of d for every round.
func WithRoundDuration(d time.Duration) Option {
	return func(o *options) {
		o.roundDuration = d
	}
}

func newOptions(opts []Option) options {
	o := options{randIntN: rand.IntN}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func currentUserID(ctx context.Context) (uuid.UUID, error) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrForbidden
	}
	return userID, nil
}

func currentUser(ctx context.Context, userStore *store.UserStore) (*users.User, error) {
	if user := middleware.GetAuthenticatedUser(ctx); user != nil {
		return user, nil
	}
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	user, err := userStore.GetUser(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("failed to load current user: %w", err)
	}
	return user, nil
}

func requireAdmin(ctx context.Context, userStore *store.UserStore) (*users.User, error) {
	user, err := currentUser(ctx, userStore)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, ErrForbidden
	}
	return user, nil
}

func requireHostOrAdmin(ctx context.Context, userStore *store.UserStore, competition *bracket.Competition) (*users.User, error) {
	user, err := currentUser(ctx, userStore)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin && !competition.IsHost(user.ID) {
		return nil, ErrForbidden
	}
	return user, nil
}

// lookupError turns a missing row into ErrNotFound and wraps anything else.
func lookupError(what string, err error) error {
	if store.IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
