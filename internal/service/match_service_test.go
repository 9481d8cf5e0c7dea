package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/broadcast"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeMatch_MoreVotesWins(t *testing.T) {
	e := newTestEngine(t)
	c, entries := e.seededCompetition(t, 4)
	match := e.matchAt(t, c.ID, 1, 2)

	e.castVotes(t, match.ID, entries[2].ID, 1)
	e.castVotes(t, match.ID, entries[1].ID, 2)

	finalized, err := e.matches.FinalizeMatch(adminCtx(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchCompleted, finalized.Status)
	assert.Equal(t, entries[1].ID, *finalized.WinnerID)
	assert.False(t, finalized.IsTie)
	assert.Nil(t, finalized.CoinFlipWinner)
	assert.Equal(t, 2, finalized.Entry1Votes)
	assert.Equal(t, 1, finalized.Entry2Votes)

	events := e.publisher.OfType(broadcast.EventMatchFinalized)
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.MatchFinalized{MatchID: match.ID, WinnerID: entries[1].ID}, events[0].Payload)

	_, err = e.matches.FinalizeMatch(adminCtx(), match.ID)
	assert.ErrorIs(t, err, ErrMatchNotReady)
}

func TestFinalizeMatch_TieIsSettledByCoinFlip(t *testing.T) {
	for slot, pick := range []int{0, 1} {
		e := newTestEngine(t, fixedRandom(pick))
		c, entries := e.seededCompetition(t, 4)
		match := e.matchAt(t, c.ID, 1, 1)

		e.castVotes(t, match.ID, entries[0].ID, 2)
		e.castVotes(t, match.ID, entries[3].ID, 2)

		finalized, err := e.matches.FinalizeMatch(adminCtx(), match.ID)
		require.NoError(t, err)

		expected := *match.Entry1ID
		if slot == 1 {
			expected = *match.Entry2ID
		}
		assert.True(t, finalized.IsTie)
		assert.Equal(t, expected, *finalized.WinnerID)
		require.NotNil(t, finalized.CoinFlipWinner)
		assert.Equal(t, *finalized.WinnerID, *finalized.CoinFlipWinner)

		persisted := e.matchAt(t, c.ID, 1, 1)
		assert.True(t, persisted.IsTie)
		assert.Equal(t, expected, *persisted.CoinFlipWinner)

		events := e.publisher.OfType(broadcast.EventMatchFinalized)
		require.Len(t, events, 1)
		payload := events[0].Payload.(broadcast.MatchFinalized)
		assert.True(t, payload.IsTie)
		assert.Equal(t, expected, *payload.CoinFlipWinner)
	}
}

func TestFinalizeMatch_ZeroVotesIsATie(t *testing.T) {
	e := newTestEngine(t, fixedRandom(1))
	c, _ := e.seededCompetition(t, 2)
	match := e.matchAt(t, c.ID, 1, 1)

	finalized, err := e.matches.FinalizeMatch(adminCtx(), match.ID)
	require.NoError(t, err)
	assert.True(t, finalized.IsTie)
	assert.Equal(t, *match.Entry2ID, *finalized.WinnerID)
}

func TestFinalizeMatch_Authorization(t *testing.T) {
	e := newTestEngine(t)
	hostID := e.newUser(t, true)

	c := e.openCompetition(t, &hostID)
	e.submitEntries(t, c.ID, 4)
	e.clock.Advance(2 * time.Hour)
	_, err := e.competitions.CloseEntriesAndSeed(context.Background(), c.ID)
	require.NoError(t, err)

	match := e.matchAt(t, c.ID, 1, 1)

	_, err = e.matches.FinalizeMatch(asUser(e.newUser(t, true)), match.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.matches.FinalizeMatch(context.Background(), match.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, bracket.MatchVoting, e.matchAt(t, c.ID, 1, 1).Status)

	_, err = e.matches.FinalizeMatch(asUser(hostID), match.ID)
	require.NoError(t, err)

	_, err = e.matches.FinalizeMatch(adminCtx(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeMatch_PendingMatch(t *testing.T) {
	e := newTestEngine(t)
	c, _ := e.seededCompetition(t, 4)

	_, err := e.matches.FinalizeMatch(adminCtx(), e.matchAt(t, c.ID, 2, 1).ID)
	assert.ErrorIs(t, err, ErrMatchNotReady)
}

func TestAdvance_WinnerMovesToDownstreamSlot(t *testing.T) {
	e := newTestEngine(t)
	c, entries := e.seededCompetition(t, 8)

	// Round 1 match 3 is seed 3 against seed 6
	m3 := e.matchAt(t, c.ID, 1, 3)
	assert.Equal(t, entries[2].ID, *m3.Entry1ID)
	assert.Equal(t, entries[5].ID, *m3.Entry2ID)

	e.castVotes(t, m3.ID, entries[5].ID, 1)
	_, err := e.matches.FinalizeMatch(adminCtx(), m3.ID)
	require.NoError(t, err)

	r2m2 := e.matchAt(t, c.ID, 2, 2)
	require.NotNil(t, r2m2.Entry1ID)
	assert.Equal(t, entries[5].ID, *r2m2.Entry1ID)
	assert.Nil(t, r2m2.Entry2ID)
	assert.Equal(t, bracket.MatchPending, r2m2.Status)
	assert.Empty(t, e.publisher.OfType(broadcast.EventMatchReady))

	// Match 4 is even and fills slot 2, which opens the downstream match
	m4 := e.matchAt(t, c.ID, 1, 4)
	e.castVotes(t, m4.ID, *m4.Entry1ID, 1)
	_, err = e.matches.FinalizeMatch(adminCtx(), m4.ID)
	require.NoError(t, err)

	r2m2 = e.matchAt(t, c.ID, 2, 2)
	assert.Equal(t, *m4.Entry1ID, *r2m2.Entry2ID)
	assert.Equal(t, bracket.MatchVoting, r2m2.Status)

	ready := e.publisher.OfType(broadcast.EventMatchReady)
	require.Len(t, ready, 1)
	assert.Equal(t, broadcast.MatchReady{MatchID: r2m2.ID, RoundNumber: 2, MatchNumber: 2}, ready[0].Payload)

	got, err := e.competitions.GetCompetition(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.CompetitionVoting, got.Status)
}

func TestEndToEnd_FourEntries(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	c, entries := e.seededCompetition(t, 4)
	require.Equal(t, 4, c.BracketSize)

	m1 := e.matchAt(t, c.ID, 1, 1)
	m2 := e.matchAt(t, c.ID, 1, 2)
	assert.Equal(t, [2]uuid.UUID{entries[0].ID, entries[3].ID}, [2]uuid.UUID{*m1.Entry1ID, *m1.Entry2ID})
	assert.Equal(t, [2]uuid.UUID{entries[1].ID, entries[2].ID}, [2]uuid.UUID{*m2.Entry1ID, *m2.Entry2ID})

	e.castVotes(t, m1.ID, entries[0].ID, 3)
	e.castVotes(t, m1.ID, entries[3].ID, 1)
	e.castVotes(t, m2.ID, entries[2].ID, 2)

	_, err := e.matches.FinalizeMatch(adminCtx(), m1.ID)
	require.NoError(t, err)
	_, err = e.matches.FinalizeMatch(adminCtx(), m2.ID)
	require.NoError(t, err)

	final := e.matchAt(t, c.ID, 2, 1)
	assert.Equal(t, bracket.MatchVoting, final.Status)
	assert.Equal(t, entries[0].ID, *final.Entry1ID)
	assert.Equal(t, entries[2].ID, *final.Entry2ID)

	e.castVotes(t, final.ID, entries[2].ID, 2)
	e.castVotes(t, final.ID, entries[0].ID, 1)
	finalized, err := e.matches.FinalizeMatch(adminCtx(), final.ID)
	require.NoError(t, err)
	assert.Equal(t, entries[2].ID, *finalized.WinnerID)

	got, err := e.competitions.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.CompetitionCompleted, got.Status)
	assert.Equal(t, entries[2].ID, *got.WinnerEntryID)
	assert.Equal(t, *entries[2].UserID, *got.WinnerUserID)
	require.NotNil(t, got.CompletedAt)

	completed := e.publisher.OfType(broadcast.EventCompetitionCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, broadcast.CompetitionCompleted{WinnerEntryID: entries[2].ID, WinnerUserID: entries[2].UserID}, completed[0].Payload)

	stats, err := e.users.GetStats(ctx, *entries[2].UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalWins)
	assert.Equal(t, 1, stats.TotalCompetitions)

	matches, err := e.competitionStore.GetMatches(ctx, c.ID)
	require.NoError(t, err)
	for _, m := range matches {
		assert.Equal(t, bracket.MatchCompleted, m.Status)
		require.NotNil(t, m.WinnerID)
		decided := 0
		if m.Entry1Votes > m.Entry2Votes {
			decided++
		}
		if m.Entry2Votes > m.Entry1Votes {
			decided++
		}
		if m.IsTie {
			decided++
		}
		assert.Equal(t, 1, decided)
	}
}

func TestEndToEnd_FillerCanWin(t *testing.T) {
	e := newTestEngine(t)
	c, entries := e.seededCompetition(t, 3)
	ctx := context.Background()

	m1 := e.matchAt(t, c.ID, 1, 1)
	require.True(t, entries[3].IsFiller)
	assert.Equal(t, entries[3].ID, *m1.Entry2ID)

	e.castVotes(t, m1.ID, entries[3].ID, 1)
	_, err := e.matches.FinalizeMatch(adminCtx(), m1.ID)
	require.NoError(t, err)

	m2 := e.matchAt(t, c.ID, 1, 2)
	e.castVotes(t, m2.ID, entries[1].ID, 1)
	_, err = e.matches.FinalizeMatch(adminCtx(), m2.ID)
	require.NoError(t, err)

	final := e.matchAt(t, c.ID, 2, 1)
	e.castVotes(t, final.ID, entries[3].ID, 1)
	_, err = e.matches.FinalizeMatch(adminCtx(), final.ID)
	require.NoError(t, err)

	got, err := e.competitions.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.CompetitionCompleted, got.Status)
	assert.Equal(t, entries[3].ID, *got.WinnerEntryID)
	assert.Nil(t, got.WinnerUserID)
}

func TestGetMatch(t *testing.T) {
	e := newTestEngine(t)
	c, entries := e.seededCompetition(t, 2)
	match := e.matchAt(t, c.ID, 1, 1)

	data, err := e.matches.GetMatch(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, data.Entry1.ID)
	assert.Equal(t, entries[1].ID, data.Entry2.ID)
	assert.Nil(t, data.Schedule)
}

func TestFinalizeMatch_ConcurrentSiblings(t *testing.T) {
	e := newTestEngine(t)
	c, _ := e.seededCompetition(t, 4)

	m1 := e.matchAt(t, c.ID, 1, 1)
	m2 := e.matchAt(t, c.ID, 1, 2)
	e.castVotes(t, m1.ID, *m1.Entry1ID, 1)
	e.castVotes(t, m2.ID, *m2.Entry2ID, 1)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []uuid.UUID{m1.ID, m2.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.matches.FinalizeMatch(adminCtx(), id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final := e.matchAt(t, c.ID, 2, 1)
	require.NotNil(t, final.Entry1ID)
	require.NotNil(t, final.Entry2ID)
	assert.Equal(t, *m1.Entry1ID, *final.Entry1ID)
	assert.Equal(t, *m2.Entry2ID, *final.Entry2ID)
	assert.Equal(t, bracket.MatchVoting, final.Status)
	assert.Len(t, e.publisher.OfType(broadcast.EventMatchReady), 1)
}

func TestFinalizeMatch_RacesVotes(t *testing.T) {
	e := newTestEngine(t)
	c, _ := e.seededCompetition(t, 2)
	match := e.matchAt(t, c.ID, 1, 1)

	const voters = 10
	ids := make([]uuid.UUID, voters)
	for i := range ids {
		ids[i] = e.newUser(t, false)
	}

	var wg sync.WaitGroup
	errs := make(chan error, voters+1)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target := *match.Entry1ID
			if i%2 == 0 {
				target = *match.Entry2ID
			}
			// Votes that arrive after the match completed are turned away
			_, err := e.votes.CastVote(asUser(id), match.ID, target)
			if err != nil && !errors.Is(err, ErrMatchNotVotable) {
				errs <- err
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := e.matches.FinalizeMatch(adminCtx(), match.ID); err != nil {
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := e.voteStore.GetVotesForMatch(context.Background(), match.ID)
	require.NoError(t, err)

	finalized := e.matchAt(t, c.ID, 1, 1)
	assert.Equal(t, bracket.MatchCompleted, finalized.Status)
	assert.Equal(t, len(stored), finalized.TotalVotes)
	assert.Equal(t, finalized.TotalVotes, finalized.Entry1Votes+finalized.Entry2Votes)

	require.NotNil(t, finalized.WinnerID)
	switch {
	case finalized.Entry1Votes > finalized.Entry2Votes:
		assert.Equal(t, *finalized.Entry1ID, *finalized.WinnerID)
	case finalized.Entry2Votes > finalized.Entry1Votes:
		assert.Equal(t, *finalized.Entry2ID, *finalized.WinnerID)
	default:
		assert.True(t, finalized.IsTie)
	}
}

func TestFinalizeMatch_AfterCompetitionCompleted(t *testing.T) {
	e := newTestEngine(t)
	c, entries := e.seededCompetition(t, 4)

	_, err := e.competitions.CompleteCompetition(context.Background(), c.ID, entries[1].ID)
	require.NoError(t, err)

	_, err = e.matches.FinalizeMatch(adminCtx(), e.matchAt(t, c.ID, 1, 1).ID)
	assert.ErrorIs(t, err, ErrMatchNotReady)

	got, err := e.competitions.GetCompetition(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, entries[1].ID, *got.WinnerEntryID)
	assert.Equal(t, bracket.MatchVoting, e.matchAt(t, c.ID, 1, 1).Status)
}
