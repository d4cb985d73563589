package ga

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"evostrat/internal/genotype"
	"evostrat/internal/randutil"
)

// Population owns the genotype slots. Slots are only ever overwritten
// wholesale, through Install, or mutated in place by one operator at a time.
type Population struct {
	mu    sync.RWMutex
	slots []*genotype.Genotype
}

// NewPopulation creates a new random population
func NewPopulation(size int, opts genotype.Options, rng *rand.Rand) *Population {
	p := &Population{slots: make([]*genotype.Genotype, size)}
	for i := range p.slots {
		p.slots[i] = genotype.Random(opts, rng)
	}
	return p
}

// FromGenotypes wraps existing genotypes, e.g. a restored snapshot
func FromGenotypes(gs []*genotype.Genotype) *Population {
	return &Population{slots: append([]*genotype.Genotype(nil), gs...)}
}

// Size returns the population size
func (p *Population) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots)
}

// At returns the genotype in slot i
func (p *Population) At(i int) *genotype.Genotype {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slots[i]
}

// Snapshot returns the current slot contents
func (p *Population) Snapshot() []*genotype.Genotype {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*genotype.Genotype(nil), p.slots...)
}

// Age advances every slot's lifecycle counters
func (p *Population) Age() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, g := range p.slots {
		g.Age()
	}
}

// Best returns the slot with the highest reward
func (p *Population) Best(rewards []float64) (int, *genotype.Genotype) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.slots) == 0 {
		return -1, nil
	}
	best := 0
	for i := range rewards {
		if randutil.Key(rewards[i]) > randutil.Key(rewards[best]) {
			best = i
		}
	}
	return best, p.slots[best]
}

// Pending is a deferred crossover for one replacement slot. Run may execute
// on any goroutine; the child only becomes visible through Install.
type Pending struct {
	Slot    int
	Parents []int
	Seed    int64

	child *genotype.Genotype
	err   error
	done  bool
}

// NewPending plans the crossover described by a [child, parents...] record
func NewPending(record []int, seed int64) *Pending {
	return &Pending{
		Slot:    record[0],
		Parents: append([]int(nil), record[1:]...),
		Seed:    seed,
	}
}

// Run computes the child from a snapshot of the population taken before any
// slot of this generation was replaced
func (t *Pending) Run(snapshot []*genotype.Genotype) {
	parents := make([]*genotype.Genotype, len(t.Parents))
	for i, idx := range t.Parents {
		parents[i] = snapshot[idx]
	}
	rng := rand.New(rand.NewSource(t.Seed))
	t.child, t.err = Crossover(rng, parents)
	t.done = true
}

// Child returns the finished result
func (t *Pending) Child() (*genotype.Genotype, error) {
	if !t.done {
		return nil, fmt.Errorf("crossover for slot %d has not run", t.Slot)
	}
	return t.child, t.err
}

// Install swaps all finished children into their slots at once. Nothing is
// installed if any crossover failed or has not run.
func (p *Population) Install(pending []*Pending) error {
	var errs []error
	seen := make(map[int]bool, len(pending))
	for _, t := range pending {
		if seen[t.Slot] {
			errs = append(errs, fmt.Errorf("slot %d scheduled twice", t.Slot))
		}
		seen[t.Slot] = true
		if _, err := t.Child(); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", t.Slot, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("install crossovers: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range pending {
		p.slots[t.Slot] = t.child
	}
	return nil
}
