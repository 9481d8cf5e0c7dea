package bracket

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidBracketSize = errors.New("bracket size must be a power of two of at least 2")

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on.
// Never returns less than 2 for a positive count.
func CalcBracketSize(count int) int {
	if count <= 0 {
		return 0
	}
	if count <= 2 {
		return 2
	}
	return 1 << bits.Len(uint(count-1))
}

func IsValidBracketSize(size int) bool {
	return size >= 2 && size&(size-1) == 0
}

// RoundCount is log2 of a valid bracket size.
func RoundCount(bracketSize int) int {
	return bits.TrailingZeros(uint(bracketSize))
}

// MatchesInRound is the number of matches of a round, round 1 holding bracketSize/2.
func MatchesInRound(bracketSize, round int) int {
	return bracketSize >> round
}

// Round1Pairs returns the 1-based seed pairs of round 1 in match number order:
// match k is seed k against seed bracketSize+1-k.
func Round1Pairs(bracketSize int) ([][2]int, error) {
	if !IsValidBracketSize(bracketSize) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBracketSize, bracketSize)
	}

	pairs := make([][2]int, 0, bracketSize/2)
	for k := 1; k <= bracketSize/2; k++ {
		pairs = append(pairs, [2]int{k, bracketSize + 1 - k})
	}
	return pairs, nil
}

// NextPosition is where the winner of (round, matchNumber) goes: the next round,
// match ceil(matchNumber/2), slot 1 for odd match numbers and slot 2 for even ones.
func NextPosition(round, matchNumber int) (nextRound, nextMatch, slot int) {
	nextRound = round + 1
	nextMatch = (matchNumber + 1) / 2
	slot = 2
	if matchNumber%2 != 0 {
		slot = 1
	}
	return nextRound, nextMatch, slot
}

// RoundLabel names a round the way viewers expect, counting back from the final.
func RoundLabel(round, totalRounds int) string {
	switch totalRounds - round {
	case 0:
		return "Final"
	case 1:
		return "Semifinals"
	case 2:
		return "Quarterfinals"
	}
	return fmt.Sprintf("Round of %d", 1<<(totalRounds-round+1))
}

// BuildMatches creates every match of a single elimination bracket. Round 1 is populated from
// entries ordered by seed (len(entries) must equal bracketSize) and opened for voting, later rounds
// are empty pending shells.
func BuildMatches(competitionID uuid.UUID, entries []Entry, now time.Time) ([]Match, error) {
	bracketSize := len(entries)
	pairs, err := Round1Pairs(bracketSize)
	if err != nil {
		return nil, err
	}

	bySeed := make(map[int]Entry, len(entries))
	for _, e := range entries {
		bySeed[e.Seed] = e
	}

	matches := make([]Match, 0, bracketSize-1)
	for i, pair := range pairs {
		e1, ok1 := bySeed[pair[0]]
		e2, ok2 := bySeed[pair[1]]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("seed positions are not contiguous, missing seed for pair %v", pair)
		}
		m := Match{
			ID:            uuid.New(),
			CompetitionID: competitionID,
			RoundNumber:   1,
			MatchNumber:   i + 1,
			Status:        MatchVoting,
			CreatedAt:     now,
		}
		m.SetSlot(1, e1.ID)
		m.SetSlot(2, e2.ID)
		matches = append(matches, m)
	}

	totalRounds := RoundCount(bracketSize)
	for r := 2; r <= totalRounds; r++ {
		for n := 1; n <= MatchesInRound(bracketSize, r); n++ {
			matches = append(matches, Match{
				ID:            uuid.New(),
				CompetitionID: competitionID,
				RoundNumber:   r,
				MatchNumber:   n,
				Status:        MatchPending,
				CreatedAt:     now,
			})
		}
	}

	return matches, nil
}
