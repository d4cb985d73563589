// Package genotype defines the per-slot evolvable state: policy weights,
// self-adapted step sizes, an optional graphoid body plan and lifecycle
// counters.
package genotype

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"evostrat/internal/nn"
)

// Indices into LogSigmas
const (
	SigmaHidden = iota // every layer except the last
	SigmaOutput        // the last layer
	SigmaGrow
	SigmaShrink
	SigmaSwap
	SigmaLength
	SigmaAngle
)

// AdaptationDimension returns the number of step sizes a genotype carries
func AdaptationDimension(hasBody bool) int {
	if hasBody {
		return SigmaAngle + 1
	}
	return SigmaOutput + 1
}

// WeightGroup returns the step-size index used by layer l of n layers
func WeightGroup(l, n int) int {
	if l == n-1 {
		return SigmaOutput
	}
	return SigmaHidden
}

// Genotype is one population member
type Genotype struct {
	ID        string
	Weights   []*mat.Dense
	LogSigmas []float64
	Body      *Graphoid

	GenerationsSinceCreated int
	GenerationsSinceMutated int

	mu   sync.Mutex
	flat []float64
}

// Shape describes the policy architecture a genotype's weights follow
type Shape struct {
	InputSize int
	UnitSizes []int
}

// Options controls random initialization
type Options struct {
	Shape           Shape
	InitialLogSigma float64
	WithBody        bool
	InitialBreadth  int
}

// New assembles a genotype with a fresh identity. The body, if present, must
// satisfy its invariants; LogSigmas must match the adaptation dimension.
func New(weights []*mat.Dense, logSigmas []float64, body *Graphoid) (*Genotype, error) {
	if want := AdaptationDimension(body != nil); len(logSigmas) != want {
		return nil, fmt.Errorf("new genotype: %d log-sigmas, want %d", len(logSigmas), want)
	}
	if body != nil {
		if err := body.Validate(math.MaxInt); err != nil {
			return nil, fmt.Errorf("new genotype: %w", err)
		}
	}
	return &Genotype{
		ID:        uuid.NewString(),
		Weights:   weights,
		LogSigmas: append([]float64(nil), logSigmas...),
		Body:      body,
	}, nil
}

// FromFlat rebuilds a genotype from row-major weights in the given shape
func FromFlat(flat, logSigmas []float64, body *Graphoid, shape Shape) (*Genotype, error) {
	ws, err := nn.Unflatten(flat, shape.InputSize, shape.UnitSizes)
	if err != nil {
		return nil, err
	}
	return New(ws, logSigmas, body)
}

// Random creates a fresh genotype
func Random(opts Options, rng *rand.Rand) *Genotype {
	var body *Graphoid
	if opts.WithBody {
		body = RandomGraphoid(opts.InitialBreadth, rng)
	}
	sigmas := make([]float64, AdaptationDimension(opts.WithBody))
	for i := range sigmas {
		sigmas[i] = opts.InitialLogSigma
	}
	return &Genotype{
		ID:        uuid.NewString(),
		Weights:   nn.RandomWeights(opts.Shape.InputSize, opts.Shape.UnitSizes, rng),
		LogSigmas: sigmas,
		Body:      body,
	}
}

// Clone creates a deep copy with the same identity and counters
func (g *Genotype) Clone() *Genotype {
	return &Genotype{
		ID:                      g.ID,
		Weights:                 nn.CloneWeights(g.Weights),
		LogSigmas:               append([]float64(nil), g.LogSigmas...),
		Body:                    g.Body.Clone(),
		GenerationsSinceCreated: g.GenerationsSinceCreated,
		GenerationsSinceMutated: g.GenerationsSinceMutated,
	}
}

// Flat returns the memoized row-major concatenation of the weights. The
// returned slice must not be modified.
func (g *Genotype) Flat() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.flat == nil {
		g.flat = nn.Flatten(g.Weights)
	}
	return g.flat
}

// Invalidate drops derived state after the weights changed
func (g *Genotype) Invalidate() {
	g.mu.Lock()
	g.flat = nil
	g.mu.Unlock()
}

// Signature identifies the body plan; empty without a body
func (g *Genotype) Signature() string {
	return g.Body.Signature()
}

// Age advances the lifecycle counters by one generation
func (g *Genotype) Age() {
	g.GenerationsSinceCreated++
	g.GenerationsSinceMutated++
}
