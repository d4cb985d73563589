package genotype

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"evostrat/internal/randutil"
)

// MaxLength caps every segment length, torso included
const MaxLength = 3.0

// Limb is one half of a graphoid body: a tree in pre-order degree encoding
// plus one length and one angle per non-root node.
type Limb struct {
	Structure []int     `json:"structure"`
	Lengths   []float64 `json:"lengths"`
	Angles    []float64 `json:"angles"`
}

// NewLimb validates the parallel arrays against the structure
func NewLimb(structure []int, lengths, angles []float64) (Limb, error) {
	l := Limb{
		Structure: append([]int(nil), structure...),
		Lengths:   append([]float64(nil), lengths...),
		Angles:    append([]float64(nil), angles...),
	}
	if err := l.Validate(math.MaxInt); err != nil {
		return Limb{}, err
	}
	return l, nil
}

// Breadth returns the number of non-root nodes
func (l Limb) Breadth() int {
	return len(l.Structure) - 1
}

// Validate checks the tree encoding and the attribute counts
func (l Limb) Validate(maxBreadth int) error {
	if !IsValid(l.Structure) {
		return fmt.Errorf("limb structure %v: %w", l.Structure, ErrInvariant)
	}
	b := l.Breadth()
	if len(l.Lengths) != b || len(l.Angles) != b {
		return fmt.Errorf("limb breadth %d with %d lengths and %d angles: %w",
			b, len(l.Lengths), len(l.Angles), ErrInvariant)
	}
	if b > maxBreadth {
		return fmt.Errorf("limb breadth %d exceeds %d: %w", b, maxBreadth, ErrInvariant)
	}
	return nil
}

// Clone makes a deep copy of the limb
func (l Limb) Clone() Limb {
	return Limb{
		Structure: append([]int(nil), l.Structure...),
		Lengths:   append([]float64(nil), l.Lengths...),
		Angles:    append([]float64(nil), l.Angles...),
	}
}

// RandomLimb builds a small valid limb: a root with a chain of breadth nodes
func RandomLimb(breadth int, rng *rand.Rand) Limb {
	if breadth < 1 {
		breadth = 1
	}
	l := Limb{Structure: make([]int, breadth+1)}
	for i := 0; i < breadth; i++ {
		l.Structure[i] = 1
	}
	for i := 0; i < breadth; i++ {
		l.Lengths = append(l.Lengths, NewLength(rng))
		l.Angles = append(l.Angles, NewAngle(rng))
	}
	return l
}

// NewLength draws the length of a freshly grown node
func NewLength(rng *rand.Rand) float64 {
	return math.Exp(rng.NormFloat64() / 10)
}

// NewAngle draws the angle of a freshly grown node
func NewAngle(rng *rand.Rand) float64 {
	return randutil.Uniform(rng, -math.Pi/2, math.Pi/2)
}

// Graphoid is the structural genotype: a torso with a limb tree on each side
type Graphoid struct {
	Left        Limb    `json:"left"`
	Right       Limb    `json:"right"`
	TorsoLength float64 `json:"torso_length"`
}

// Validate checks both halves
func (g *Graphoid) Validate(maxBreadth int) error {
	if err := g.Left.Validate(maxBreadth); err != nil {
		return fmt.Errorf("left: %w", err)
	}
	if err := g.Right.Validate(maxBreadth); err != nil {
		return fmt.Errorf("right: %w", err)
	}
	return nil
}

// Clone makes a deep copy of the body
func (g *Graphoid) Clone() *Graphoid {
	if g == nil {
		return nil
	}
	return &Graphoid{
		Left:        g.Left.Clone(),
		Right:       g.Right.Clone(),
		TorsoLength: g.TorsoLength,
	}
}

// Signature identifies the body plan topology. Two graphoids with equal
// signatures can share a physical realization.
func (g *Graphoid) Signature() string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	write := func(s []int) {
		for i, d := range s {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(d))
		}
	}
	write(g.Left.Structure)
	b.WriteByte('|')
	write(g.Right.Structure)
	return b.String()
}

// Nodes returns the total number of non-root nodes on both sides
func (g *Graphoid) Nodes() int {
	if g == nil {
		return 0
	}
	return g.Left.Breadth() + g.Right.Breadth()
}

// RandomGraphoid builds an initial body
func RandomGraphoid(breadth int, rng *rand.Rand) *Graphoid {
	return &Graphoid{
		Left:        RandomLimb(breadth, rng),
		Right:       RandomLimb(breadth, rng),
		TorsoLength: NewLength(rng),
	}
}
