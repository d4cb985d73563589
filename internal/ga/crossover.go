package ga

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"evostrat/internal/genotype"
	"evostrat/internal/nn"
)

// ColumnCrossover builds child weights from parents[0]'s, replacing every
// output unit's column with the column of a uniformly drawn donor. A unit
// keeps all its input weights from a single parent.
func ColumnCrossover(rng *rand.Rand, parents []*genotype.Genotype) ([]*mat.Dense, error) {
	base := parents[0].Weights
	for _, p := range parents[1:] {
		if len(p.Weights) != len(base) {
			return nil, fmt.Errorf("crossover: parent %s has %d layers, want %d", p.ID, len(p.Weights), len(base))
		}
		for l, w := range p.Weights {
			r, c := w.Dims()
			br, bc := base[l].Dims()
			if r != br || c != bc {
				return nil, fmt.Errorf("crossover: parent %s layer %d is %dx%d, want %dx%d", p.ID, l, r, c, br, bc)
			}
		}
	}

	child := nn.CloneWeights(base)
	for l, w := range child {
		_, cols := w.Dims()
		for j := 0; j < cols; j++ {
			donor := parents[rng.Intn(len(parents))]
			w.SetCol(j, mat.Col(nil, j, donor.Weights[l]))
		}
	}
	return child, nil
}

// Crossover recombines parents into one new genotype. Parents are not
// modified. The child has a fresh identity and zeroed counters.
func Crossover(rng *rand.Rand, parents []*genotype.Genotype) (*genotype.Genotype, error) {
	if len(parents) == 0 {
		return nil, errors.New("crossover: no parents")
	}

	weights, err := ColumnCrossover(rng, parents)
	if err != nil {
		return nil, err
	}

	d := len(parents[0].LogSigmas)
	sigmas := make([]float64, d)
	for _, p := range parents {
		if len(p.LogSigmas) != d {
			return nil, fmt.Errorf("crossover: parent %s has %d log-sigmas, want %d", p.ID, len(p.LogSigmas), d)
		}
		for i, s := range p.LogSigmas {
			sigmas[i] += s
		}
	}
	for i := range sigmas {
		sigmas[i] /= float64(len(parents))
	}

	var body *genotype.Graphoid
	if parents[0].Body != nil {
		for _, p := range parents {
			if p.Body == nil {
				return nil, fmt.Errorf("crossover: parent %s has no body", p.ID)
			}
		}
		left := parents[rng.Intn(len(parents))].Body
		right := parents[rng.Intn(len(parents))].Body
		body = &genotype.Graphoid{
			Left:        left.Left.Clone(),
			Right:       right.Right.Clone(),
			TorsoLength: left.TorsoLength,
		}
	}

	return genotype.New(weights, sigmas, body)
}
