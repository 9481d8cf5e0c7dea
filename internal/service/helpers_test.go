package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/broadcast"
	"github.com/AdamBeresnev/bracket-battles/internal/db"
	"github.com/AdamBeresnev/bracket-battles/internal/middleware"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	users "github.com/AdamBeresnev/bracket-battles/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB creates a temporary SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.InitDB(db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to open test DB")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, db.DriverSQLite, "../../migrations/sqlite"), "Failed to apply migrations")
	return database
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event broadcast.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) OfType(eventType broadcast.EventType) []broadcast.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []broadcast.Event
	for _, e := range p.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

type testEngine struct {
	db        *sqlx.DB
	clock     *clockwork.FakeClock
	publisher *recordingPublisher

	competitionStore *store.CompetitionStore
	voteStore        *store.VoteStore
	userStore        *store.UserStore

	brackets     *BracketService
	schedules    *ScheduleService
	competitions *CompetitionService
	matches      *MatchService
	votes        *VoteService
	entries      *EntryService
	users        *UserService
}

func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	return newTestEngineWithUploader(t, nil, opts...)
}

func newTestEngineWithUploader(t *testing.T, uploader ImageUploader, opts ...Option) *testEngine {
	t.Helper()

	database := setupTestDB(t)
	clock := clockwork.NewFakeClockAt(testStart)
	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	competitionStore := store.NewCompetitionStore(database)
	voteStore := store.NewVoteStore(database)
	userStore := store.NewUserStore(database)

	brackets := NewBracketService(competitionStore, clock)
	schedules := NewScheduleService(database, competitionStore, userStore)
	competitions := NewCompetitionService(database, competitionStore, userStore, brackets, publisher, clock, logger, opts...)

	return &testEngine{
		db:               database,
		clock:            clock,
		publisher:        publisher,
		competitionStore: competitionStore,
		voteStore:        voteStore,
		userStore:        userStore,
		brackets:         brackets,
		schedules:        schedules,
		competitions:     competitions,
		matches:          NewMatchService(database, competitionStore, voteStore, userStore, brackets, competitions, publisher, clock, logger, opts...),
		votes:            NewVoteService(database, competitionStore, voteStore, userStore, schedules, publisher, clock, logger),
		entries:          NewEntryService(database, competitionStore, uploader, clock, logger),
		users:            NewUserService(userStore, competitionStore),
	}
}

func asUser(userID uuid.UUID) context.Context {
	return context.WithValue(context.Background(), middleware.UserIDKey, userID)
}

func adminCtx() context.Context {
	return asUser(uuid.MustParse(middleware.SuperUserID))
}

func (e *testEngine) newUser(t *testing.T, verified bool) uuid.UUID {
	t.Helper()
	u := &users.User{
		ID:          uuid.New(),
		Email:       uuid.NewString() + "@example.com",
		DisplayName: "Player",
		IsVerified:  verified,
		CreatedAt:   e.clock.Now().UTC(),
	}
	require.NoError(t, e.userStore.CreateUser(context.Background(), u))
	return u.ID
}

// openCompetition creates a competition whose entries close in an hour and opens it.
func (e *testEngine) openCompetition(t *testing.T, hostID *uuid.UUID) *bracket.Competition {
	t.Helper()
	c, err := e.competitions.CreateCompetition(adminCtx(), CreateCompetitionInput{
		Title:         "Best Opening",
		Topic:         "Anime openings",
		HostID:        hostID,
		EntryDeadline: e.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	c, err = e.competitions.OpenEntries(context.Background(), c.ID)
	require.NoError(t, err)
	return c
}

// submitEntries has n new users submit one entry each, in order, and returns the entries.
func (e *testEngine) submitEntries(t *testing.T, competitionID uuid.UUID, n int) []bracket.Entry {
	t.Helper()
	entries := make([]bracket.Entry, 0, n)
	for i := 1; i <= n; i++ {
		userID := e.newUser(t, true)
		entry, err := e.entries.SubmitEntry(asUser(userID), competitionID, EntryInput{Selection: fmt.Sprintf("Entry %d", i)})
		require.NoError(t, err)
		entries = append(entries, *entry)
	}
	return entries
}

// seededCompetition runs a competition with n entries up to the start of voting.
func (e *testEngine) seededCompetition(t *testing.T, n int) (*bracket.Competition, []bracket.Entry) {
	t.Helper()
	c := e.openCompetition(t, nil)
	e.submitEntries(t, c.ID, n)

	e.clock.Advance(2 * time.Hour)
	c, err := e.competitions.CloseEntriesAndSeed(context.Background(), c.ID)
	require.NoError(t, err)

	entries, err := e.competitionStore.GetEntries(context.Background(), c.ID)
	require.NoError(t, err)
	return c, entries
}

func (e *testEngine) matchAt(t *testing.T, competitionID uuid.UUID, round, number int) *bracket.Match {
	t.Helper()
	matches, err := e.competitionStore.GetRoundMatches(context.Background(), competitionID, round)
	require.NoError(t, err)
	for i := range matches {
		if matches[i].MatchNumber == number {
			return &matches[i]
		}
	}
	t.Fatalf("match R%dM%d not found", round, number)
	return nil
}

// castVotes has n new users vote for entryID in the match.
func (e *testEngine) castVotes(t *testing.T, matchID, entryID uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.votes.CastVote(asUser(e.newUser(t, false)), matchID, entryID)
		require.NoError(t, err)
	}
}

func fixedRandom(v int) Option {
	return WithRandom(func(int) int { return v })
}
