package ga

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"evostrat/internal/genotype"
)

func TestInstallSwapsChildrenAfterRun(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pop := FromGenotypes(newTestGenotypes(rng, 4))
	snapshot := pop.Snapshot()
	oldSlot2 := pop.At(2)

	pending := []*Pending{
		NewPending([]int{2, 0, 1}, 10),
		NewPending([]int{3, 1, 0}, 11),
	}

	var wg sync.WaitGroup
	for _, p := range pending {
		wg.Add(1)
		go func(p *Pending) {
			defer wg.Done()
			p.Run(snapshot)
		}(p)
	}

	// the slot still holds its pre-replacement genotype until Install
	if pop.At(2) != oldSlot2 {
		t.Fatal("slot replaced before install")
	}
	wg.Wait()

	if err := pop.Install(pending); err != nil {
		t.Fatalf("install: %v", err)
	}
	if pop.At(2) == oldSlot2 {
		t.Fatal("slot 2 not replaced")
	}
	child, _ := pending[0].Child()
	if pop.At(2) != child {
		t.Fatal("slot 2 does not hold the scheduled child")
	}
	if pop.At(0) != snapshot[0] || pop.At(1) != snapshot[1] {
		t.Fatal("parent slots must not change")
	}
}

func TestInstallRejectsUnfinishedAndDuplicateSlots(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pop := FromGenotypes(newTestGenotypes(rng, 3))
	before := pop.Snapshot()

	unfinished := []*Pending{NewPending([]int{2, 0}, 1)}
	if err := pop.Install(unfinished); err == nil {
		t.Fatal("expected error for a crossover that has not run")
	}

	a := NewPending([]int{2, 0}, 1)
	b := NewPending([]int{2, 1}, 2)
	a.Run(before)
	b.Run(before)
	if err := pop.Install([]*Pending{a, b}); err == nil {
		t.Fatal("expected error for a slot scheduled twice")
	}
	for i, g := range pop.Snapshot() {
		if g != before[i] {
			t.Fatalf("slot %d changed after a failed install", i)
		}
	}
}

func TestPopulationAgeAndBest(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pop := NewPopulation(3, genotype.Options{
		Shape:           genotype.Shape{InputSize: 2, UnitSizes: []int{2}},
		InitialLogSigma: 0,
	}, rng)
	pop.Age()
	for _, g := range pop.Snapshot() {
		if g.GenerationsSinceCreated != 1 || g.GenerationsSinceMutated != 1 {
			t.Fatalf("counters = (%d, %d), want (1, 1)", g.GenerationsSinceCreated, g.GenerationsSinceMutated)
		}
	}

	idx, g := pop.Best([]float64{math.NaN(), 2, 1})
	if idx != 1 || g != pop.At(1) {
		t.Fatalf("best = %d, want 1", idx)
	}
}
