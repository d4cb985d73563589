package eval

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"evostrat/internal/config"
	"evostrat/internal/env"
	"evostrat/internal/genotype"
	"evostrat/internal/nn"
)

// Result holds one generation's episode outcomes, indexed by slot
type Result struct {
	Rewards []float64
	Base    []float64 // task term, equal to Rewards for non-decomposed environments
	Energy  []float64
	Rebuilt int // environments recreated for a new body plan
}

type slot struct {
	env       env.Environment
	signature string
	built     bool
	mlp       *nn.MLP
}

// Evaluator runs one episode per genotype. Each population slot owns an
// environment instance that is reused across generations and rebuilt only
// when the slot's body plan changes.
type Evaluator struct {
	cfg     *config.Config
	kind    env.Kind
	seed    uint32
	workers int
	slots   []*slot
}

// NewEvaluator creates an evaluator for a population of the given size
func NewEvaluator(cfg *config.Config, kind env.Kind, shape genotype.Shape, size int) *Evaluator {
	workers := cfg.Eval.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	slots := make([]*slot, size)
	for i := range slots {
		slots[i] = &slot{mlp: nn.NewMLP(shape.InputSize, shape.UnitSizes)}
	}
	return &Evaluator{
		cfg:     cfg,
		kind:    kind,
		seed:    uint32(cfg.Seed),
		workers: workers,
		slots:   slots,
	}
}

// Evaluate plays every genotype in its slot and returns the rewards.
// genotypes[i] is evaluated in slot i.
func (e *Evaluator) Evaluate(ctx context.Context, genotypes []*genotype.Genotype) (Result, error) {
	if len(genotypes) != len(e.slots) {
		return Result{}, fmt.Errorf("evaluate: %d genotypes for %d slots", len(genotypes), len(e.slots))
	}
	res := Result{
		Rewards: make([]float64, len(genotypes)),
		Base:    make([]float64, len(genotypes)),
		Energy:  make([]float64, len(genotypes)),
	}
	rebuilt := make([]bool, len(genotypes))

	p := pool.New().WithMaxGoroutines(e.workers).WithContext(ctx)
	for i, g := range genotypes {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := e.slots[i]
			var err error
			if rebuilt[i], err = e.prepare(s, g); err != nil {
				return fmt.Errorf("slot %d: %w", i, err)
			}
			res.Rewards[i] = env.Run(s.env, s.mlp.Predict, nil)
			res.Base[i] = res.Rewards[i]
			if d, ok := s.env.(env.Decomposed); ok {
				res.Base[i] = d.BaseReward()
				res.Energy[i] = d.EnergyCost()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Result{}, err
	}
	for _, r := range rebuilt {
		if r {
			res.Rebuilt++
		}
	}
	return res, nil
}

// prepare loads the genotype's weights and makes sure the slot's
// environment realizes its body. A new topology rebuilds the environment; the
// same topology with mutated segment attributes is updated in place.
func (e *Evaluator) prepare(s *slot, g *genotype.Genotype) (bool, error) {
	if err := s.mlp.SetWeights(g.Weights); err != nil {
		return false, err
	}
	sig := g.Signature()
	if !s.built || sig != s.signature {
		inst, err := e.kind.New(e.cfg, g.Body, e.seed)
		if err != nil {
			return false, fmt.Errorf("build %s environment: %w", e.kind.Name(), err)
		}
		s.env = inst
		s.signature = sig
		s.built = true
		return true, nil
	}
	if b, ok := s.env.(bodied); ok && g.Body != nil {
		if err := b.SetBody(g.Body); err != nil {
			return false, err
		}
	}
	return false, nil
}

type bodied interface {
	SetBody(body *genotype.Graphoid) error
}

// Play runs a single episode for g outside the population slots
func Play(cfg *config.Config, kind env.Kind, g *genotype.Genotype, shape genotype.Shape, r *env.Replay) (float64, error) {
	m, err := NewPolicy(cfg, kind, g, shape)
	if err != nil {
		return 0, err
	}
	inst, err := kind.New(cfg, g.Body, uint32(cfg.Seed))
	if err != nil {
		return 0, err
	}
	if r != nil {
		env.Record(inst, m.Predict, r)
		return r.Final, nil
	}
	return env.Run(inst, m.Predict, nil), nil
}

// NewPolicy builds the network for g and checks that it fits the
// environment's observation and action sizes
func NewPolicy(cfg *config.Config, kind env.Kind, g *genotype.Genotype, shape genotype.Shape) (*nn.MLP, error) {
	m := nn.NewMLP(shape.InputSize, shape.UnitSizes)
	if obs := kind.ObservationSize(cfg); m.InputSize != obs {
		return nil, fmt.Errorf("policy: %d inputs, %s observes %d", m.InputSize, kind.Name(), obs)
	}
	if act := kind.ActionSize(cfg); m.OutputSize() != act {
		return nil, fmt.Errorf("policy: %d outputs, %s acts on %d", m.OutputSize(), kind.Name(), act)
	}
	if n := len(g.Flat()); n != m.GenomeSize() {
		return nil, fmt.Errorf("policy: genotype has %d weights, network needs %d", n, m.GenomeSize())
	}
	if err := m.SetWeights(g.Weights); err != nil {
		return nil, err
	}
	return m, nil
}

type episodeStatser interface {
	Stats() env.EpisodeStats
}

// Benchmark plays g once per seed and aggregates the episode statistics.
// Only environments that report EpisodeStats (snake) can be benchmarked.
func Benchmark(cfg *config.Config, kind env.Kind, g *genotype.Genotype, shape genotype.Shape, seeds []uint32) (env.AggregatedStats, error) {
	m, err := NewPolicy(cfg, kind, g, shape)
	if err != nil {
		return env.AggregatedStats{}, err
	}
	episodes := make([]env.EpisodeStats, 0, len(seeds))
	for _, seed := range seeds {
		inst, err := kind.New(cfg, g.Body, seed)
		if err != nil {
			return env.AggregatedStats{}, err
		}
		s, ok := inst.(episodeStatser)
		if !ok {
			return env.AggregatedStats{}, fmt.Errorf("benchmark: %s reports no episode statistics", kind.Name())
		}
		env.Run(inst, m.Predict, nil)
		ep := s.Stats()
		ep.Seed = seed
		episodes = append(episodes, ep)
	}
	return env.Aggregate(episodes), nil
}
