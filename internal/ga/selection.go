package ga

import (
	"fmt"
	"math/rand"

	"evostrat/internal/randutil"
)

// Selection is the outcome of one round of elitist tournament selection
type Selection struct {
	Selected []int   // survivors, elites first, no duplicates
	Matchups [][]int // one per accepted tournament: [winner, losers...]
	Rank     []int   // indices by descending reward
}

// stallFactor bounds the tournaments spent without accepting anyone before
// the remaining places are filled in rank order.
const stallFactor = 1000

func healthy(r float64) bool {
	return randutil.IsFinite(r) && r != 0
}

// Select ranks the population, keeps the top numElites and fills the rest of
// numSelects places by tournaments of tournamentSize draws with replacement.
//
// A tournament winner that is already selected is skipped. A winner with a
// non-finite reward is rejected while any unselected healthy agent (finite,
// non-zero reward) remains, so broken agents only fill places once healthy
// candidates are exhausted.
func Select(rng *rand.Rand, rewards []float64, numElites, numSelects, tournamentSize int) (Selection, error) {
	n := len(rewards)
	if numSelects > n {
		return Selection{}, fmt.Errorf("select: %d selects from population of %d", numSelects, n)
	}
	if numElites < 0 || numElites > numSelects {
		return Selection{}, fmt.Errorf("select: %d elites with %d selects", numElites, numSelects)
	}
	if tournamentSize < 1 {
		return Selection{}, fmt.Errorf("select: tournament size %d < 1", tournamentSize)
	}

	rank := randutil.RankDescending(rewards)
	chosen := make([]bool, n)
	sel := Selection{
		Selected: make([]int, 0, numSelects),
		Rank:     rank,
	}

	healthyLeft := 0
	for _, r := range rewards {
		if healthy(r) {
			healthyLeft++
		}
	}
	accept := func(i int) {
		chosen[i] = true
		sel.Selected = append(sel.Selected, i)
		if healthy(rewards[i]) {
			healthyLeft--
		}
	}

	for _, i := range rank[:numElites] {
		accept(i)
	}

	draws := make([]int, tournamentSize)
	stalled := 0
	for len(sel.Selected) < numSelects {
		if stalled > stallFactor*n {
			for _, i := range rank {
				if len(sel.Selected) == numSelects {
					break
				}
				if !chosen[i] {
					accept(i)
				}
			}
			break
		}

		for k := range draws {
			draws[k] = rng.Intn(n)
		}
		winner := draws[0]
		for _, d := range draws[1:] {
			if randutil.Key(rewards[d]) > randutil.Key(rewards[winner]) {
				winner = d
			}
		}

		if chosen[winner] || (!randutil.IsFinite(rewards[winner]) && healthyLeft > 0) {
			stalled++
			continue
		}
		stalled = 0
		accept(winner)

		matchup := []int{winner}
		for _, d := range draws {
			if d != winner && !contains(matchup, d) {
				matchup = append(matchup, d)
			}
		}
		sel.Matchups = append(sel.Matchups, matchup)
	}

	return sel, nil
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
