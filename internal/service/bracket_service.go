package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

// BracketService seeds entries into round 1 and moves winners through the bracket.
// Both operations run inside a transaction owned by the caller.
type BracketService struct {
	store *store.CompetitionStore
	clock clockwork.Clock
}

func NewBracketService(store *store.CompetitionStore, clock clockwork.Clock) *BracketService {
	return &BracketService{store: store, clock: clock}
}

type SeedResult struct {
	BracketSize int
	Fillers     []bracket.Entry
	Matches     []bracket.Match
}

// Seed pads entries with fillers up to the next power of two, creates round 1 from the seed order
// and pre-creates the empty shells of every later round. It sets competition.BracketSize.
func (s *BracketService) Seed(ctx context.Context, tx *sqlx.Tx, competition *bracket.Competition, entries []bracket.Entry) (*SeedResult, error) {
	seeded := slices.Clone(entries)
	slices.SortFunc(seeded, func(a, b bracket.Entry) int { return a.Seed - b.Seed })

	realEntries := 0
	for i, e := range seeded {
		if e.Seed != i+1 {
			return nil, fmt.Errorf("seed positions of competition %s are not contiguous at %d", competition.ID, e.Seed)
		}
		if !e.IsFiller {
			realEntries++
		}
	}
	if realEntries < 2 {
		return nil, ErrInsufficientEntries
	}

	bracketSize := bracket.CalcBracketSize(len(seeded))
	if !bracket.IsValidBracketSize(bracketSize) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBracketSize, bracketSize)
	}

	now := s.clock.Now().UTC()

	// Fillers always take the highest seeds so real entries meet them first
	fillers := make([]bracket.Entry, 0, bracketSize-len(seeded))
	for seed := len(seeded) + 1; seed <= bracketSize; seed++ {
		fillers = append(fillers, bracket.Entry{
			ID:            uuid.New(),
			CompetitionID: competition.ID,
			Selection:     fmt.Sprintf("Wildcard #%d", seed-len(seeded)),
			Seed:          seed,
			IsFiller:      true,
			CreatedAt:     now,
		})
	}
	if err := s.store.CreateEntries(ctx, tx, fillers); err != nil {
		return nil, fmt.Errorf("failed to create filler entries: %w", err)
	}

	matches, err := bracket.BuildMatches(competition.ID, append(seeded, fillers...), now)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}

	competition.BracketSize = bracketSize

	return &SeedResult{
		BracketSize: bracketSize,
		Fillers:     fillers,
		Matches:     matches,
	}, nil
}

type Advancement struct {
	// Next is the downstream match the winner was written into, nil after the final.
	Next *bracket.Match
	// Ready is set when Next just received its second entry and opened for voting.
	Ready bool
	// Final is set when match was the last match of the bracket.
	Final bool
}

// Advance writes the winner of a completed match into its downstream slot. The downstream row is
// locked so sibling matches finishing at the same time cannot overwrite each other's slot.
func (s *BracketService) Advance(ctx context.Context, tx *sqlx.Tx, competition *bracket.Competition, match *bracket.Match) (*Advancement, error) {
	if match.Status != bracket.MatchCompleted || match.WinnerID == nil {
		return nil, errors.New("only completed matches with a winner can advance")
	}

	if match.RoundNumber >= competition.Rounds() {
		return &Advancement{Final: true}, nil
	}

	nextRound, nextNumber, slot := bracket.NextPosition(match.RoundNumber, match.MatchNumber)
	next, err := s.store.GetMatchAtForUpdate(ctx, tx, match.CompetitionID, nextRound, nextNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get downstream match R%dM%d: %w", nextRound, nextNumber, err)
	}

	current := next.Entry1ID
	if slot == 2 {
		current = next.Entry2ID
	}
	if current != nil && *current != *match.WinnerID {
		return nil, fmt.Errorf("slot %d of match R%dM%d is already taken", slot, nextRound, nextNumber)
	}

	next.SetSlot(slot, *match.WinnerID)

	ready := false
	if next.HasBothEntries() && next.Status == bracket.MatchPending {
		next.Status = bracket.MatchVoting
		ready = true
	}

	if err := s.store.UpdateMatch(ctx, tx, next); err != nil {
		return nil, fmt.Errorf("failed to update downstream match: %w", err)
	}

	return &Advancement{Next: next, Ready: ready}, nil
}
