package ga

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"evostrat/internal/genotype"
	"evostrat/internal/randutil"
)

// ErrNonFiniteSigma reports a step size that left the finite range after
// self-adaptation
var ErrNonFiniteSigma = errors.New("non-finite mutation strength")

const (
	structuralRate = 0.05
	maxSwaps       = 5
)

// MutationParams holds the global coefficients of self-adaptive mutation
type MutationParams struct {
	Prob       float64 // per-weight mutation probability in percent
	TauCoef    float64
	Tau0Coef   float64
	MinLength  float64
	MaxBreadth int

	// HaltOnNonFinite rejects the mutation when a step size becomes
	// non-finite instead of logging and carrying on.
	HaltOnNonFinite bool
	// OnNonFinite, if set, is called once per affected mutation.
	OnNonFinite func()

	Logger *slog.Logger
}

// LearningRates returns (tau, tau0) for an adaptation dimension d
func (p MutationParams) LearningRates(d int) (float64, float64) {
	fd := float64(d)
	return p.TauCoef / math.Sqrt(2*fd), p.Tau0Coef / math.Sqrt(2*math.Sqrt(fd))
}

// Mutate adapts g's step sizes, then perturbs its weights and body in place
func Mutate(rng *rand.Rand, g *genotype.Genotype, p MutationParams) error {
	sigmas, err := adaptSigmas(rng, g, p)
	if err != nil {
		return err
	}

	MutateWeights(rng, g, sigmas, p.Prob)

	if g.Body != nil {
		if err := mutateLimb(rng, &g.Body.Left, sigmas, p); err != nil {
			return fmt.Errorf("mutate %s left: %w", g.ID, err)
		}
		if err := mutateLimb(rng, &g.Body.Right, sigmas, p); err != nil {
			return fmt.Errorf("mutate %s right: %w", g.ID, err)
		}
		g.Body.TorsoLength = perturbLength(rng, g.Body.TorsoLength, sigmas[genotype.SigmaLength], p.MinLength)
	}

	g.GenerationsSinceMutated = 0
	g.Invalidate()
	return nil
}

// adaptSigmas applies two-level log-normal self-adaptation and returns the
// resulting strengths
func adaptSigmas(rng *rand.Rand, g *genotype.Genotype, p MutationParams) ([]float64, error) {
	d := len(g.LogSigmas)
	tau, tau0 := p.LearningRates(d)

	shared := randutil.Normal(rng)
	sigmas := make([]float64, d)
	finite := true
	for i := range g.LogSigmas {
		g.LogSigmas[i] += tau*randutil.Normal(rng) + tau0*shared
		sigmas[i] = math.Exp(g.LogSigmas[i])
		if !randutil.IsFinite(sigmas[i]) {
			finite = false
		}
	}

	if !finite {
		logger := p.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("non-finite mutation strength", "genotype", g.ID, "log_sigmas", g.LogSigmas)
		if p.OnNonFinite != nil {
			p.OnNonFinite()
		}
		if p.HaltOnNonFinite {
			return nil, fmt.Errorf("mutate %s: %w", g.ID, ErrNonFiniteSigma)
		}
	}
	return sigmas, nil
}

// MutateWeights perturbs each scalar weight with probability prob percent by
// Gaussian noise scaled with its layer's strength. Weights that lose the
// draw are left untouched.
func MutateWeights(rng *rand.Rand, g *genotype.Genotype, sigmas []float64, prob float64) {
	rate := prob / 100
	for l, w := range g.Weights {
		s := sigmas[genotype.WeightGroup(l, len(g.Weights))]
		raw := w.RawMatrix()
		for i := 0; i < raw.Rows; i++ {
			row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
			for j := range row {
				if rng.Float64() < rate {
					row[j] += s * randutil.Normal(rng)
				}
			}
		}
	}
}

func mutateLimb(rng *rand.Rand, limb *genotype.Limb, sigmas []float64, p MutationParams) error {
	n := float64(len(limb.Structure))
	structure := append([]int(nil), limb.Structure...)

	grow := structuralRate * sigmas[genotype.SigmaGrow] / n
	shrink := structuralRate * sigmas[genotype.SigmaShrink] / n
	for i := range structure {
		if rng.Float64() < grow {
			structure[i]++
		} else if rng.Float64() < shrink && structure[i] > 0 {
			structure[i]--
		}
	}

	swap := structuralRate * sigmas[genotype.SigmaSwap] / n
	for k := 0; k < maxSwaps && len(structure) > 1; k++ {
		if rng.Float64() >= swap {
			continue
		}
		i := rng.Intn(len(structure))
		j := rng.Intn(len(structure) - 1)
		if j >= i {
			j++
		}
		structure[i], structure[j] = structure[j], structure[i]
	}

	repaired, err := genotype.CorrectStructure(structure, p.MaxBreadth)
	if err != nil {
		return err
	}

	lengthStrength := sigmas[genotype.SigmaLength]
	angleStrength := sigmas[genotype.SigmaAngle]
	for i := range limb.Lengths {
		limb.Lengths[i] = perturbLength(rng, limb.Lengths[i], lengthStrength, p.MinLength)
	}
	for i := range limb.Angles {
		limb.Angles[i] += angleStrength * randutil.Normal(rng) / 10
	}

	breadth := len(repaired) - 1
	for len(limb.Lengths) < breadth {
		limb.Lengths = append(limb.Lengths, genotype.NewLength(rng))
		limb.Angles = append(limb.Angles, genotype.NewAngle(rng))
	}
	if len(limb.Lengths) > breadth {
		limb.Lengths = limb.Lengths[:breadth]
		limb.Angles = limb.Angles[:breadth]
	}
	limb.Structure = repaired

	if len(limb.Lengths) != breadth || len(limb.Angles) != breadth {
		return fmt.Errorf("breadth %d with %d lengths and %d angles: %w",
			breadth, len(limb.Lengths), len(limb.Angles), genotype.ErrInvariant)
	}
	return nil
}

func perturbLength(rng *rand.Rand, v, strength, minLength float64) float64 {
	v *= math.Exp(strength * randutil.Normal(rng) / 10)
	return math.Min(math.Max(v, minLength), genotype.MaxLength)
}
