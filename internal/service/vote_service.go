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

type VoteService struct {
	db        *sqlx.DB
	store     *store.CompetitionStore
	votes     *store.VoteStore
	users     *store.UserStore
	schedules *ScheduleService
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
}

func NewVoteService(
	db *sqlx.DB,
	store *store.CompetitionStore,
	votes *store.VoteStore,
	users *store.UserStore,
	schedules *ScheduleService,
	publisher Publisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{
		db:        db,
		store:     store,
		votes:     votes,
		users:     users,
		schedules: schedules,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// CastVote records the current user's choice for a match, replacing any earlier vote, and
// recomputes the match tally from the stored votes.
func (s *VoteService) CastVote(ctx context.Context, matchID, entryID uuid.UUID) (*bracket.Match, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err := s.store.GetMatchForUpdate(ctx, tx, matchID)
	if err != nil {
		return nil, lookupError("match", err)
	}
	if match.Status != bracket.MatchVoting || !match.HasBothEntries() {
		return nil, ErrMatchNotVotable
	}

	// An administrator may complete a competition while some of its matches are still live
	competition, err := s.store.GetCompetitionTx(ctx, tx, match.CompetitionID)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	if competition.Status != bracket.CompetitionVoting {
		return nil, ErrMatchNotVotable
	}

	now := s.clock.Now().UTC()
	if err := s.schedules.checkWindowTx(ctx, tx, match.CompetitionID, match.RoundNumber, now); err != nil {
		return nil, err
	}

	if match.Slot(entryID) == 0 {
		return nil, ErrInvalidEntry
	}

	existing, err := s.votes.GetVoteTx(ctx, tx, match.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing vote: %w", err)
	}

	vote := &bracket.Vote{
		ID:        uuid.New(),
		MatchID:   match.ID,
		UserID:    userID,
		EntryID:   entryID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		vote.ID = existing.ID
		vote.CreatedAt = existing.CreatedAt
	}

	if err := s.votes.UpsertVote(ctx, tx, vote); err != nil {
		return nil, fmt.Errorf("failed to save vote: %w", err)
	}

	if existing == nil {
		if err := s.users.IncrementStat(ctx, tx, userID, store.StatVotesCast); err != nil {
			return nil, fmt.Errorf("failed to update voter stats: %w", err)
		}
	}

	counts, err := s.votes.CountVotesTx(ctx, tx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	tally := tallyFor(match, counts)
	if err := s.store.UpdateMatchTally(ctx, tx, match.ID, tally); err != nil {
		return nil, fmt.Errorf("failed to update tally: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	match.Entry1Votes, match.Entry2Votes, match.TotalVotes = tally.Entry1Votes, tally.Entry2Votes, tally.TotalVotes

	s.publisher.Publish(ctx, broadcast.Event{
		Type:          broadcast.EventVoteUpdate,
		CompetitionID: match.CompetitionID,
		Payload: broadcast.VoteUpdate{
			MatchID:     match.ID,
			Entry1Votes: tally.Entry1Votes,
			Entry2Votes: tally.Entry2Votes,
			TotalVotes:  tally.TotalVotes,
		},
		OccurredAt: now,
	})

	return match, nil
}

// GetUserVotes maps match id to the entry the current user voted for, across one competition.
func (s *VoteService) GetUserVotes(ctx context.Context, competitionID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	userID, err := currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	votes, err := s.votes.GetUserVotes(ctx, competitionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get votes: %w", err)
	}

	result := make(map[uuid.UUID]uuid.UUID, len(votes))
	for _, v := range votes {
		result[v.MatchID] = v.EntryID
	}
	return result, nil
}

func tallyFor(match *bracket.Match, counts map[uuid.UUID]int) bracket.Tally {
	var tally bracket.Tally
	if match.Entry1ID != nil {
		tally.Entry1Votes = counts[*match.Entry1ID]
	}
	if match.Entry2ID != nil {
		tally.Entry2Votes = counts[*match.Entry2ID]
	}
	tally.TotalVotes = tally.Entry1Votes + tally.Entry2Votes
	return tally
}
