package ga

import (
	"fmt"
	"math/rand"

	"evostrat/internal/genotype"
	"evostrat/internal/randutil"
)

// maxParentRetries bounds the redraws of a stale or repeated parent
const maxParentRetries = 15

// Settings configures one generation of selection and mating
type Settings struct {
	NumElites      int
	NumSelects     int
	TournamentSize int
	NumParents     int
	// Kappa is the largest GenerationsSinceMutated a parent may have before
	// it is redrawn.
	Kappa        int
	Comma        bool
	MutateElites bool
}

// Record ties a slot to the reward it has to beat next generation
type Record struct {
	Index     int
	Rank      int
	Reference float64
}

// EvolutionInfo is the per-generation bookkeeping derived from rewards
type EvolutionInfo struct {
	Elites   []int
	Winners  []int // selected with finite reward
	Losers   []int // slots replaced by crossover
	Matchups [][]int
	Parents  [][]int // [child, parents...]
	Mutants  []int

	Rank        []int
	InverseRank []int
	Rewards     []float64

	// CrossoverRecords carry the best father's reward per child;
	// MutationRecords the pre-mutation reward per surviving mutant.
	CrossoverRecords []Record
	MutationRecords  []Record
}

// ComputeGeneration runs selection on rewards and plans crossover and
// mutation for the next generation. genotypes is read for lifecycle
// counters only.
func ComputeGeneration(rng *rand.Rand, rewards []float64, genotypes []*genotype.Genotype, s Settings) (*EvolutionInfo, error) {
	n := len(rewards)
	if len(genotypes) != n {
		return nil, fmt.Errorf("compute generation: %d rewards for %d genotypes", n, len(genotypes))
	}
	if s.NumParents < 1 {
		return nil, fmt.Errorf("compute generation: %d parents per child", s.NumParents)
	}

	sel, err := Select(rng, rewards, s.NumElites, s.NumSelects, s.TournamentSize)
	if err != nil {
		return nil, err
	}

	info := &EvolutionInfo{
		Elites:      append([]int(nil), sel.Rank[:s.NumElites]...),
		Matchups:    sel.Matchups,
		Rank:        sel.Rank,
		InverseRank: randutil.Inverse(sel.Rank),
		Rewards:     append([]float64(nil), rewards...),
	}

	isElite := make([]bool, n)
	for _, i := range info.Elites {
		isElite[i] = true
	}
	isSelected := make([]bool, n)
	for _, i := range sel.Selected {
		isSelected[i] = true
		if randutil.IsFinite(rewards[i]) {
			info.Winners = append(info.Winners, i)
		}
	}

	pool := info.Winners
	if len(pool) == 0 {
		pool = sel.Selected
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("compute generation: empty mating pool")
	}

	isLoser := make([]bool, n)
	for i := 0; i < n; i++ {
		if (s.Comma && !isElite[i]) || (!s.Comma && !isSelected[i]) {
			isLoser[i] = true
			info.Losers = append(info.Losers, i)
		}
	}

	for _, child := range info.Losers {
		parents := sampleParents(rng, pool, genotypes, s)
		best := parents[0]
		for _, p := range parents[1:] {
			if randutil.Key(rewards[p]) > randutil.Key(rewards[best]) {
				best = p
			}
		}
		info.Parents = append(info.Parents, append([]int{child}, parents...))
		if !randutil.IsFinite(rewards[best]) {
			continue
		}
		info.CrossoverRecords = append(info.CrossoverRecords, Record{
			Index:     child,
			Rank:      info.InverseRank[child],
			Reference: rewards[best],
		})
	}

	for i := 0; i < n; i++ {
		if isElite[i] && !s.MutateElites {
			continue
		}
		info.Mutants = append(info.Mutants, i)
		if isSelected[i] && !isLoser[i] && randutil.IsFinite(rewards[i]) {
			info.MutationRecords = append(info.MutationRecords, Record{
				Index:     i,
				Rank:      info.InverseRank[i],
				Reference: rewards[i],
			})
		}
	}

	return info, nil
}

// sampleParents draws s.NumParents fathers from pool, redrawing candidates
// that are stale (not mutated for more than Kappa generations) or already
// drawn, up to maxParentRetries times each.
func sampleParents(rng *rand.Rand, pool []int, genotypes []*genotype.Genotype, s Settings) []int {
	parents := make([]int, 0, s.NumParents)
	distinct := len(pool) >= s.NumParents
	for k := 0; k < s.NumParents; k++ {
		var c int
		for try := 0; ; try++ {
			c = pool[rng.Intn(len(pool))]
			stale := genotypes[c].GenerationsSinceMutated > s.Kappa
			repeated := distinct && contains(parents, c)
			if try == maxParentRetries || (!stale && !repeated) {
				break
			}
		}
		parents = append(parents, c)
	}
	return parents
}

// CrossoverSuccess returns the fraction of children whose reward beats their
// best father's
func (e *EvolutionInfo) CrossoverSuccess(rewards []float64) float64 {
	return successRate(e.CrossoverRecords, rewards)
}

// MutationSuccess returns the fraction of surviving mutants whose reward
// beats their own pre-mutation reward
func (e *EvolutionInfo) MutationSuccess(rewards []float64) float64 {
	return successRate(e.MutationRecords, rewards)
}

// successRate ignores records without a finite reference reward, since any
// outcome would beat one.
func successRate(records []Record, rewards []float64) float64 {
	wins, counted := 0, 0
	for _, r := range records {
		if !randutil.IsFinite(r.Reference) {
			continue
		}
		counted++
		if randutil.Key(rewards[r.Index]) > r.Reference {
			wins++
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(wins) / float64(counted)
}
