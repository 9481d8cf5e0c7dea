package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/broadcast"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	users "github.com/AdamBeresnev/bracket-battles/internal/user"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// recentHostWindow is how many completed competitions a host sits out after hosting.
const recentHostWindow = 3

// CompetitionService drives the competition lifecycle:
// upcoming -> accepting_entries -> voting -> completed.
type CompetitionService struct {
	db        *sqlx.DB
	store     *store.CompetitionStore
	users     *store.UserStore
	brackets  *BracketService
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	opts      options
}

func NewCompetitionService(
	db *sqlx.DB,
	store *store.CompetitionStore,
	users *store.UserStore,
	brackets *BracketService,
	publisher Publisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	opts ...Option,
) *CompetitionService {
	return &CompetitionService{
		db:        db,
		store:     store,
		users:     users,
		brackets:  brackets,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		opts:      newOptions(opts),
	}
}

type CreateCompetitionInput struct {
	Title         string
	Topic         string
	HostID        *uuid.UUID
	EntryDeadline time.Time
}

type CompetitionData struct {
	Competition *bracket.Competition    `json:"competition"`
	Entries     []bracket.Entry         `json:"entries"`
	Matches     []bracket.Match         `json:"matches"`
	Schedules   []bracket.RoundSchedule `json:"schedules"`
}

func (s *CompetitionService) CreateCompetition(ctx context.Context, input CreateCompetitionInput) (*bracket.Competition, error) {
	if _, err := requireAdmin(ctx, s.users); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	topic := strings.TrimSpace(input.Topic)
	if title == "" || topic == "" || input.EntryDeadline.IsZero() {
		return nil, ErrInvalidCompetition
	}

	if input.HostID != nil {
		if _, err := s.users.GetUser(ctx, *input.HostID); err != nil {
			return nil, lookupError("host", err)
		}
	}

	now := s.clock.Now().UTC()
	competition := &bracket.Competition{
		ID:            uuid.New(),
		Slug:          slug.Make(title),
		Title:         title,
		Topic:         topic,
		HostID:        input.HostID,
		Status:        bracket.CompetitionUpcoming,
		EntryDeadline: input.EntryDeadline.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreateCompetition(ctx, tx, competition); err != nil {
		return nil, fmt.Errorf("failed to create competition: %w", err)
	}

	if competition.HostID != nil {
		if err := s.store.RecordHost(ctx, tx, *competition.HostID, competition.ID, now); err != nil {
			return nil, fmt.Errorf("failed to record host: %w", err)
		}
		if err := s.users.IncrementStat(ctx, tx, *competition.HostID, store.StatTimesHosted); err != nil {
			return nil, fmt.Errorf("failed to update host stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Competition created", "competition_id", competition.ID, "slug", competition.Slug)
	s.publisher.Publish(ctx, broadcast.Event{
		Type:          broadcast.EventCompetitionCreated,
		CompetitionID: competition.ID,
		Payload:       competition,
		OccurredAt:    now,
	})

	return competition, nil
}

func (s *CompetitionService) GetCompetition(ctx context.Context, id uuid.UUID) (*bracket.Competition, error) {
	competition, err := s.store.GetCompetition(ctx, id)
	if err != nil {
		return nil, lookupError("competition", err)
	}
	return competition, nil
}

// GetCompetitionData loads a competition together with everything it owns.
func (s *CompetitionService) GetCompetitionData(ctx context.Context, id uuid.UUID) (*CompetitionData, error) {
	data := &CompetitionData{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		competition, err := s.store.GetCompetition(gctx, id)
		if err != nil {
			return lookupError("competition", err)
		}
		data.Competition = competition
		return nil
	})
	g.Go(func() error {
		entries, err := s.store.GetEntries(gctx, id)
		data.Entries = entries
		return err
	})
	g.Go(func() error {
		matches, err := s.store.GetMatches(gctx, id)
		data.Matches = matches
		return err
	})
	g.Go(func() error {
		schedules, err := s.store.GetRoundSchedules(gctx, id)
		data.Schedules = schedules
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// OpenEntries moves an upcoming competition to accepting_entries. The entry deadline must be in the future.
func (s *CompetitionService) OpenEntries(ctx context.Context, id uuid.UUID) (*bracket.Competition, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err := s.store.GetCompetitionForUpdate(ctx, tx, id)
	if err != nil {
		return nil, lookupError("competition", err)
	}

	from := competition.Status
	if from != bracket.CompetitionUpcoming {
		return nil, transitionError(from, bracket.CompetitionAcceptingEntries)
	}

	now := s.clock.Now().UTC()
	if !competition.EntryDeadline.After(now) {
		return nil, fmt.Errorf("%w: entry deadline %s is not in the future", ErrInvalidTransition, competition.EntryDeadline.Format(time.RFC3339))
	}

	competition.Status = bracket.CompetitionAcceptingEntries
	competition.UpdatedAt = now
	if err := s.store.UpdateCompetition(ctx, tx, competition); err != nil {
		return nil, fmt.Errorf("failed to update competition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.publishStatus(ctx, competition, from)
	return competition, nil
}

// CloseEntriesAndSeed stops accepting entries, seeds the bracket and opens round 1 for voting.
// Fewer than 2 real entries leaves the competition untouched and returns ErrInsufficientEntries.
func (s *CompetitionService) CloseEntriesAndSeed(ctx context.Context, id uuid.UUID) (*bracket.Competition, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err := s.store.GetCompetitionForUpdate(ctx, tx, id)
	if err != nil {
		return nil, lookupError("competition", err)
	}

	from := competition.Status
	if from != bracket.CompetitionAcceptingEntries {
		return nil, transitionError(from, bracket.CompetitionVoting)
	}

	entries, err := s.store.GetEntriesTx(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}

	result, err := s.brackets.Seed(ctx, tx, competition, entries)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	competition.Status = bracket.CompetitionVoting
	competition.VotingStart = &now
	competition.UpdatedAt = now
	if err := s.store.UpdateCompetition(ctx, tx, competition); err != nil {
		return nil, fmt.Errorf("failed to update competition: %w", err)
	}

	if s.opts.roundDuration > 0 {
		schedules := buildRoundSchedules(competition.ID, result.BracketSize, now, s.opts.roundDuration)
		if err := s.store.UpsertRoundSchedules(ctx, tx, schedules); err != nil {
			return nil, fmt.Errorf("failed to create round schedules: %w", err)
		}
	}

	for _, e := range entries {
		if e.IsFiller || e.UserID == nil {
			continue
		}
		if err := s.users.IncrementStat(ctx, tx, *e.UserID, store.StatCompetitions); err != nil {
			return nil, fmt.Errorf("failed to update entrant stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Bracket seeded",
		"competition_id", competition.ID,
		"entries", len(entries),
		"fillers", len(result.Fillers),
		"bracket_size", result.BracketSize,
	)
	s.publishStatus(ctx, competition, from)
	return competition, nil
}

// CompleteCompetition records the winner and closes the competition. Completing an already
// completed competition is a no-op that returns it unchanged.
func (s *CompetitionService) CompleteCompetition(ctx context.Context, id, winnerEntryID uuid.UUID) (*bracket.Competition, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, changed, err := s.completeTx(ctx, tx, id, winnerEntryID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if changed {
		s.publishCompleted(ctx, competition)
	}
	return competition, nil
}

func (s *CompetitionService) completeTx(ctx context.Context, tx *sqlx.Tx, id, winnerEntryID uuid.UUID) (*bracket.Competition, bool, error) {
	competition, err := s.store.GetCompetitionForUpdate(ctx, tx, id)
	if err != nil {
		return nil, false, lookupError("competition", err)
	}

	if competition.Status == bracket.CompetitionCompleted {
		return competition, false, nil
	}
	if competition.Status != bracket.CompetitionVoting {
		return nil, false, transitionError(competition.Status, bracket.CompetitionCompleted)
	}

	winner, err := s.store.GetEntryTx(ctx, tx, winnerEntryID)
	if err != nil {
		return nil, false, lookupError("winning entry", err)
	}
	if winner.CompetitionID != competition.ID {
		return nil, false, ErrInvalidEntry
	}

	now := s.clock.Now().UTC()
	competition.Status = bracket.CompetitionCompleted
	competition.WinnerEntryID = &winner.ID
	competition.WinnerUserID = winner.UserID
	competition.CompletedAt = &now
	competition.UpdatedAt = now

	if err := s.store.UpdateCompetition(ctx, tx, competition); err != nil {
		return nil, false, fmt.Errorf("failed to update competition: %w", err)
	}

	if winner.UserID != nil {
		if err := s.users.IncrementStat(ctx, tx, *winner.UserID, store.StatWins); err != nil {
			return nil, false, fmt.Errorf("failed to update winner stats: %w", err)
		}
	}

	return competition, true, nil
}

// CloseExpiredEntries seeds every competition still accepting entries after its deadline.
// A competition that cannot be seeded is logged and skipped. It returns how many were closed.
func (s *CompetitionService) CloseExpiredEntries(ctx context.Context) (int, error) {
	open, err := s.store.ListCompetitionsByStatus(ctx, bracket.CompetitionAcceptingEntries)
	if err != nil {
		return 0, fmt.Errorf("failed to list open competitions: %w", err)
	}

	now := s.clock.Now()
	closed := 0
	for _, c := range open {
		if now.Before(c.EntryDeadline) {
			continue
		}
		if _, err := s.CloseEntriesAndSeed(ctx, c.ID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to close entries", "competition_id", c.ID, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// SelectRandomHost draws the next host uniformly from the verified users who entered the most
// recently completed competition and hosted none of the last three completed ones.
func (s *CompetitionService) SelectRandomHost(ctx context.Context) (*users.User, error) {
	recent, err := s.store.ListRecentlyCompleted(ctx, recentHostWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed competitions: %w", err)
	}
	if len(recent) == 0 {
		return nil, ErrNoEligibleHosts
	}

	recentHosts := make(map[uuid.UUID]struct{}, len(recent))
	for _, c := range recent {
		if c.HostID != nil {
			recentHosts[*c.HostID] = struct{}{}
		}
	}

	entrantIDs, err := s.store.GetEntrantUserIDs(ctx, recent[0].ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entrants: %w", err)
	}
	entrants, err := s.users.GetUsers(ctx, entrantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get entrant users: %w", err)
	}

	pool := make([]users.User, 0, len(entrants))
	for _, u := range entrants {
		if !u.IsVerified {
			continue
		}
		if _, hosted := recentHosts[u.ID]; hosted {
			continue
		}
		pool = append(pool, u)
	}
	if len(pool) == 0 {
		return nil, ErrNoEligibleHosts
	}

	slices.SortFunc(pool, func(a, b users.User) int { return strings.Compare(a.ID.String(), b.ID.String()) })
	host := pool[s.opts.randIntN(len(pool))]
	return &host, nil
}

func (s *CompetitionService) publishStatus(ctx context.Context, competition *bracket.Competition, from bracket.CompetitionStatus) {
	s.logger.InfoContext(ctx, "Competition status changed",
		"competition_id", competition.ID,
		"from", from,
		"to", competition.Status,
	)
	s.publisher.Publish(ctx, broadcast.Event{
		Type:          broadcast.EventCompetitionStatus,
		CompetitionID: competition.ID,
		Payload:       broadcast.StatusChanged{From: from, To: competition.Status},
		OccurredAt:    competition.UpdatedAt,
	})
}

func (s *CompetitionService) publishCompleted(ctx context.Context, competition *bracket.Competition) {
	s.publishStatus(ctx, competition, bracket.CompetitionVoting)
	s.publisher.Publish(ctx, broadcast.Event{
		Type:          broadcast.EventCompetitionCompleted,
		CompetitionID: competition.ID,
		Payload: broadcast.CompetitionCompleted{
			WinnerEntryID: *competition.WinnerEntryID,
			WinnerUserID:  competition.WinnerUserID,
		},
		OccurredAt: competition.UpdatedAt,
	})
}
