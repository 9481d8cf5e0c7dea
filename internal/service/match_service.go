package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/broadcast"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

type MatchService struct {
	db           *sqlx.DB
	store        *store.CompetitionStore
	votes        *store.VoteStore
	users        *store.UserStore
	brackets     *BracketService
	competitions *CompetitionService
	publisher    Publisher
	clock        clockwork.Clock
	logger       *slog.Logger
	opts         options
}

func NewMatchService(
	db *sqlx.DB,
	store *store.CompetitionStore,
	votes *store.VoteStore,
	users *store.UserStore,
	brackets *BracketService,
	competitions *CompetitionService,
	publisher Publisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	opts ...Option,
) *MatchService {
	return &MatchService{
		db:           db,
		store:        store,
		votes:        votes,
		users:        users,
		brackets:     brackets,
		competitions: competitions,
		publisher:    publisher,
		clock:        clock,
		logger:       logger,
		opts:         newOptions(opts),
	}
}

type MatchData struct {
	Match    *bracket.Match         `json:"match"`
	Entry1   *bracket.Entry         `json:"entry1"`
	Entry2   *bracket.Entry         `json:"entry2"`
	Schedule *bracket.RoundSchedule `json:"schedule"`
}

func (s *MatchService) GetMatch(ctx context.Context, matchID uuid.UUID) (*MatchData, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, lookupError("match", err)
	}

	data := &MatchData{Match: match}
	if match.Entry1ID != nil {
		if data.Entry1, err = s.store.GetEntry(ctx, *match.Entry1ID); err != nil {
			return nil, fmt.Errorf("failed to get entry 1: %w", err)
		}
	}
	if match.Entry2ID != nil {
		if data.Entry2, err = s.store.GetEntry(ctx, *match.Entry2ID); err != nil {
			return nil, fmt.Errorf("failed to get entry 2: %w", err)
		}
	}

	data.Schedule, err = s.store.GetRoundSchedule(ctx, match.CompetitionID, match.RoundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get round schedule: %w", err)
	}
	return data, nil
}

// FinalizeMatch decides a voting match, advances the winner and completes the competition after the
// final. Only the host or an admin may finalize. The match row stays locked from tally to completion,
// so a concurrent vote either lands before the tally or sees a completed match.
func (s *MatchService) FinalizeMatch(ctx context.Context, matchID uuid.UUID) (*bracket.Match, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, lookupError("match", err)
	}
	competition, err := s.store.GetCompetition(ctx, match.CompetitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	if _, err := requireHostOrAdmin(ctx, s.users, competition); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err = s.store.GetMatchForUpdate(ctx, tx, matchID)
	if err != nil {
		return nil, lookupError("match", err)
	}
	if match.Status != bracket.MatchVoting || !match.HasBothEntries() {
		return nil, fmt.Errorf("%w: match is %s", ErrMatchNotReady, match.Status)
	}
	competition, err = s.store.GetCompetitionTx(ctx, tx, match.CompetitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	if competition.Status != bracket.CompetitionVoting {
		return nil, fmt.Errorf("%w: competition is %s", ErrMatchNotReady, competition.Status)
	}

	counts, err := s.votes.CountVotesTx(ctx, tx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	tally := tallyFor(match, counts)
	if err := s.store.UpdateMatchTally(ctx, tx, match.ID, tally); err != nil {
		return nil, fmt.Errorf("failed to update tally: %w", err)
	}
	match.Entry1Votes, match.Entry2Votes, match.TotalVotes = tally.Entry1Votes, tally.Entry2Votes, tally.TotalVotes

	decideWinner(match, s.opts.randIntN)
	if err := s.store.UpdateMatch(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	advancement, err := s.brackets.Advance(ctx, tx, competition, match)
	if err != nil {
		return nil, err
	}

	var completed *bracket.Competition
	if advancement.Final {
		c, changed, err := s.competitions.completeTx(ctx, tx, match.CompetitionID, *match.WinnerID)
		if err != nil {
			return nil, err
		}
		if changed {
			completed = c
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Match finalized",
		"match_id", match.ID,
		"round", match.RoundNumber,
		"match", match.MatchNumber,
		"winner_id", match.WinnerID,
		"is_tie", match.IsTie,
	)

	now := s.clock.Now().UTC()
	s.publisher.Publish(ctx, broadcast.Event{
		Type:          broadcast.EventMatchFinalized,
		CompetitionID: match.CompetitionID,
		Payload: broadcast.MatchFinalized{
			MatchID:        match.ID,
			WinnerID:       *match.WinnerID,
			IsTie:          match.IsTie,
			CoinFlipWinner: match.CoinFlipWinner,
		},
		OccurredAt: now,
	})

	if advancement.Ready {
		s.publisher.Publish(ctx, broadcast.Event{
			Type:          broadcast.EventMatchReady,
			CompetitionID: match.CompetitionID,
			Payload: broadcast.MatchReady{
				MatchID:     advancement.Next.ID,
				RoundNumber: advancement.Next.RoundNumber,
				MatchNumber: advancement.Next.MatchNumber,
			},
			OccurredAt: now,
		})
	}

	if completed != nil {
		s.competitions.publishCompleted(ctx, completed)
	}

	return match, nil
}

// decideWinner completes match from its tally. Equal counts, zero to zero included, are settled by
// a coin flip that is recorded as both winner and coin flip winner.
func decideWinner(match *bracket.Match, randIntN func(n int) int) {
	var winner uuid.UUID
	switch {
	case match.Entry1Votes > match.Entry2Votes:
		winner = *match.Entry1ID
	case match.Entry2Votes > match.Entry1Votes:
		winner = *match.Entry2ID
	default:
		winner = *match.Entry1ID
		if randIntN(2) == 1 {
			winner = *match.Entry2ID
		}
		match.IsTie = true
		match.CoinFlipWinner = &winner
	}

	match.WinnerID = &winner
	match.Status = bracket.MatchCompleted
}
