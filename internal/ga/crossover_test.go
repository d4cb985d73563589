package ga

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"evostrat/internal/genotype"
)

func TestCrossoverSingleParentReproducesWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := newTestGenotype(rng, true)
	g.GenerationsSinceCreated = 7
	g.GenerationsSinceMutated = 3

	child, err := Crossover(rng, []*genotype.Genotype{g})
	if err != nil {
		t.Fatalf("crossover: %v", err)
	}
	for l := range g.Weights {
		if !mat.Equal(g.Weights[l], child.Weights[l]) {
			t.Fatalf("layer %d differs from the only parent", l)
		}
	}
	if child.GenerationsSinceCreated != 0 || child.GenerationsSinceMutated != 0 {
		t.Fatalf("child counters = (%d, %d), want (0, 0)", child.GenerationsSinceCreated, child.GenerationsSinceMutated)
	}
	if child.ID == g.ID {
		t.Fatal("child must have a fresh identity")
	}
	if child.Body.Signature() != g.Body.Signature() {
		t.Fatal("single-parent child must inherit the body plan")
	}
}

func TestCrossoverColumnsComeFromOneParent(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a := newTestGenotype(rng, false)
	b := newTestGenotype(rng, false)
	c := newTestGenotype(rng, false)
	parents := []*genotype.Genotype{a, b, c}

	child, err := Crossover(rng, parents)
	if err != nil {
		t.Fatalf("crossover: %v", err)
	}

	donors := map[int]bool{}
	for l, w := range child.Weights {
		_, cols := w.Dims()
		for j := 0; j < cols; j++ {
			col := mat.Col(nil, j, w)
			found := false
			for pi, p := range parents {
				if floatsEqual(col, mat.Col(nil, j, p.Weights[l])) {
					found = true
					donors[pi] = true
					break
				}
			}
			if !found {
				t.Fatalf("layer %d column %d is not a parent's column", l, j)
			}
		}
	}
	if len(donors) < 2 {
		t.Fatalf("expected columns from several parents, got %v", donors)
	}
}

func TestCrossoverDoesNotModifyParents(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := newTestGenotype(rng, true)
	b := newTestGenotype(rng, true)
	snapA := a.Clone()

	if _, err := Crossover(rng, []*genotype.Genotype{a, b}); err != nil {
		t.Fatalf("crossover: %v", err)
	}
	for l := range a.Weights {
		if !mat.Equal(a.Weights[l], snapA.Weights[l]) {
			t.Fatal("parent weights modified")
		}
	}
	if a.Body.Signature() != snapA.Body.Signature() {
		t.Fatal("parent body modified")
	}
}

func TestCrossoverBodyHalvesAndSigmas(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	a := newTestGenotype(rng, true)
	b := newTestGenotype(rng, true)
	b.Body.Left = genotype.Limb{Structure: []int{2, 0, 0}, Lengths: []float64{1, 1}, Angles: []float64{0, 0}}
	b.Body.Right = genotype.Limb{Structure: []int{1, 0}, Lengths: []float64{1}, Angles: []float64{0}}
	for i := range a.LogSigmas {
		a.LogSigmas[i] = 1
		b.LogSigmas[i] = 3
	}

	for trial := 0; trial < 50; trial++ {
		child, err := Crossover(rng, []*genotype.Genotype{a, b})
		if err != nil {
			t.Fatalf("crossover: %v", err)
		}
		l := len(child.Body.Left.Structure)
		if l != len(a.Body.Left.Structure) && l != len(b.Body.Left.Structure) {
			t.Fatalf("left half length %d matches no parent", l)
		}
		r := len(child.Body.Right.Structure)
		if r != len(a.Body.Right.Structure) && r != len(b.Body.Right.Structure) {
			t.Fatalf("right half length %d matches no parent", r)
		}
		if err := child.Body.Validate(math.MaxInt); err != nil {
			t.Fatalf("child body invalid: %v", err)
		}
		for i, s := range child.LogSigmas {
			if math.Abs(s-2) > 1e-12 {
				t.Fatalf("log-sigma %d = %v, want 2", i, s)
			}
		}
	}
}

func TestCrossoverRejectsShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := newTestGenotype(rng, false)
	b := genotype.Random(genotype.Options{
		Shape:           genotype.Shape{InputSize: 4, UnitSizes: []int{5, 3}},
		InitialLogSigma: 0,
	}, rng)
	if _, err := Crossover(rng, []*genotype.Genotype{a, b}); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if _, err := Crossover(rng, nil); err == nil {
		t.Fatal("expected error without parents")
	}
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
