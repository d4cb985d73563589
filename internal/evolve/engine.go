// Package evolve drives the generational loop: evaluate the population,
// select, recombine the losers' slots, mutate, and record the outcome.
package evolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"gopkg.in/yaml.v3"

	"evostrat/internal/config"
	"evostrat/internal/env"
	"evostrat/internal/eval"
	"evostrat/internal/ga"
	"evostrat/internal/genotype"
	"evostrat/internal/logging"
	"evostrat/internal/metrics"
	"evostrat/internal/nn"
	"evostrat/internal/randutil"
	"evostrat/internal/storage"
)

// Options wires the engine's optional sinks. Nil sinks are skipped.
type Options struct {
	Logger  *slog.Logger
	Summary *logging.Logger
	Metrics *metrics.Recorder
	Store   storage.Store
	RunID   string
}

// Generation is the outcome of one Step
type Generation struct {
	Number  int
	Rewards []float64
	Info    *ga.EvolutionInfo
	Summary logging.GenerationSummary
}

// Engine owns a population and advances it one generation at a time
type Engine struct {
	cfg       *config.Config
	log       *slog.Logger
	kind      env.Kind
	shape     genotype.Shape
	pop       *ga.Population
	evaluator *eval.Evaluator
	rng       *rand.Rand
	workers   int

	settings ga.Settings
	mutation ga.MutationParams

	summary  *logging.Logger
	recorder *metrics.Recorder
	store    storage.Store
	runID    string

	generation int
	prev       *ga.EvolutionInfo

	champion       *genotype.Genotype
	championReward float64
}

// New builds an engine with a freshly initialized population. An unknown
// environment or an invalid configuration is fatal here, before any
// generation runs.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	e, err := newEngine(cfg, opts)
	if err != nil {
		return nil, err
	}
	e.pop = ga.NewPopulation(cfg.ES.Population, genotype.Options{
		Shape:           e.shape,
		InitialLogSigma: cfg.ES.InitialLogSigma,
		WithBody:        e.kind.NeedsBody(),
		InitialBreadth:  cfg.Body.InitialBreadth,
	}, e.rng)

	if e.store != nil {
		cfgYAML, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		run := storage.RunRecord{
			VersionedRecord: storage.VersionedRecord{SchemaVersion: storage.CurrentSchemaVersion, CodecVersion: storage.CurrentCodecVersion},
			ID:              e.runID,
			Env:             cfg.Env.Name,
			Seed:            cfg.Seed,
			Config:          string(cfgYAML),
			CreatedAt:       time.Now().Unix(),
		}
		if err := e.store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	e.log.Info("engine ready",
		"run_id", e.runID,
		"env", cfg.Env.Name,
		"population", cfg.ES.Population,
		"input", e.shape.InputSize,
		"units", e.shape.UnitSizes,
		"genome", nn.NewMLP(e.shape.InputSize, e.shape.UnitSizes).GenomeSize(),
		"comma", cfg.ES.Comma)
	return e, nil
}

// Resume rebuilds an engine from the latest snapshot of opts.RunID
func Resume(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if opts.Store == nil || opts.RunID == "" {
		return nil, fmt.Errorf("resume: store and run id are required")
	}
	e, err := newEngine(cfg, opts)
	if err != nil {
		return nil, err
	}

	snap, ok, err := e.store.GetSnapshot(ctx, opts.RunID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", opts.RunID, err)
	}
	if !ok {
		return nil, fmt.Errorf("resume %s: no snapshot", opts.RunID)
	}
	if snap.InputSize != e.shape.InputSize || !equalInts(snap.UnitSizes, e.shape.UnitSizes) {
		return nil, fmt.Errorf("resume %s: snapshot shape %d->%v does not match config %d->%v",
			opts.RunID, snap.InputSize, snap.UnitSizes, e.shape.InputSize, e.shape.UnitSizes)
	}
	if len(snap.Genotypes) != cfg.ES.Population {
		return nil, fmt.Errorf("resume %s: snapshot has %d genotypes, config wants %d",
			opts.RunID, len(snap.Genotypes), cfg.ES.Population)
	}
	gs, _, err := snap.Restore()
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", opts.RunID, err)
	}

	e.pop = ga.FromGenotypes(gs)
	e.rng = rand.New(rand.NewSource(snap.NextSeed))
	e.generation = snap.Generation
	e.log.Info("engine resumed", "run_id", e.runID, "generation", e.generation)
	return e, nil
}

func newEngine(cfg *config.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := env.Lookup(cfg.Env.Name)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	workers := cfg.Eval.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	shape := genotype.Shape{
		InputSize: kind.ObservationSize(cfg),
		UnitSizes: append(append([]int(nil), cfg.NN.Hidden...), kind.ActionSize(cfg)),
	}

	e := &Engine{
		cfg:       cfg,
		log:       log,
		kind:      kind,
		shape:     shape,
		evaluator: eval.NewEvaluator(cfg, kind, shape, cfg.ES.Population),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		workers:   workers,
		settings: ga.Settings{
			NumElites:      cfg.ES.Elites,
			NumSelects:     cfg.ES.Selects,
			TournamentSize: cfg.ES.TournamentSize,
			NumParents:     cfg.ES.Parents,
			Kappa:          cfg.ES.Kappa,
			Comma:          cfg.ES.Comma,
			MutateElites:   cfg.ES.MutateElites,
		},
		mutation: ga.MutationParams{
			Prob:            cfg.ES.MutationProb,
			TauCoef:         cfg.ES.TauCoef,
			Tau0Coef:        cfg.ES.Tau0Coef,
			MinLength:       cfg.Body.MinLength,
			MaxBreadth:      cfg.Body.MaxBreadth,
			HaltOnNonFinite: cfg.ES.HaltOnNonFiniteSigma,
			OnNonFinite:     opts.Metrics.NonFiniteSigma,
			Logger:          log,
		},
		summary:        opts.Summary,
		recorder:       opts.Metrics,
		store:          opts.Store,
		runID:          runID,
		championReward: math.Inf(-1),
	}
	return e, nil
}

// Step runs one generation: evaluation, success bookkeeping for the previous
// generation's offspring, selection, crossover and mutation
func (e *Engine) Step(ctx context.Context) (Generation, error) {
	gen := e.generation + 1
	current := e.pop.Snapshot()

	start := time.Now()
	res, err := e.evaluator.Evaluate(ctx, current)
	if err != nil {
		return Generation{}, fmt.Errorf("generation %d: evaluate: %w", gen, err)
	}
	e.recorder.ObserveEvaluation(time.Since(start))
	rewards := res.Rewards

	summary := logging.Summarize(gen, current, rewards, res.Energy)
	summary.Rebuilt = res.Rebuilt
	if e.prev != nil {
		summary.CrossoverSuccess = e.prev.CrossoverSuccess(rewards)
		summary.MutationSuccess = e.prev.MutationSuccess(rewards)
	}
	e.trackChampion(current, rewards)

	info, err := ga.ComputeGeneration(e.rng, rewards, current, e.settings)
	if err != nil {
		return Generation{}, fmt.Errorf("generation %d: %w", gen, err)
	}

	if err := e.crossover(info, current); err != nil {
		return Generation{}, fmt.Errorf("generation %d: %w", gen, err)
	}
	if err := e.mutate(info); err != nil {
		return Generation{}, fmt.Errorf("generation %d: %w", gen, err)
	}
	e.pop.Age()

	e.prev = info
	e.generation = gen
	if err := e.record(ctx, summary, info, rewards); err != nil {
		return Generation{}, fmt.Errorf("generation %d: %w", gen, err)
	}

	return Generation{Number: gen, Rewards: rewards, Info: info, Summary: summary}, nil
}

// crossover computes every child against the pre-replacement snapshot, then
// installs them together once all have finished
func (e *Engine) crossover(info *ga.EvolutionInfo, snapshot []*genotype.Genotype) error {
	pending := make([]*ga.Pending, len(info.Parents))
	for i, rec := range info.Parents {
		pending[i] = ga.NewPending(rec, e.rng.Int63())
	}

	p := pool.New().WithMaxGoroutines(e.workers)
	for _, t := range pending {
		p.Go(func() { t.Run(snapshot) })
	}
	p.Wait()

	return e.pop.Install(pending)
}

// mutate perturbs every planned mutant in place. Each task draws from its
// own generator so the outcome does not depend on scheduling.
func (e *Engine) mutate(info *ga.EvolutionInfo) error {
	current := e.pop.Snapshot()
	seeds := make([]int64, len(info.Mutants))
	for i := range seeds {
		seeds[i] = e.rng.Int63()
	}

	p := pool.New().WithMaxGoroutines(e.workers).WithErrors()
	for i, slot := range info.Mutants {
		p.Go(func() error {
			return ga.Mutate(rand.New(rand.NewSource(seeds[i])), current[slot], e.mutation)
		})
	}
	return p.Wait()
}

// trackChampion keeps a copy of the best genotype evaluated so far. It runs
// before mutation touches the evaluated genotypes.
func (e *Engine) trackChampion(current []*genotype.Genotype, rewards []float64) {
	idx := randutil.Argmax(rewards)
	if idx < 0 || !randutil.IsFinite(rewards[idx]) {
		return
	}
	if rewards[idx] > e.championReward {
		e.champion = current[idx].Clone()
		e.championReward = rewards[idx]
	}
}

func (e *Engine) record(ctx context.Context, s logging.GenerationSummary, info *ga.EvolutionInfo, rewards []float64) error {
	if e.summary != nil {
		if err := e.summary.LogGeneration(s); err != nil {
			e.log.Warn("summary write failed", "generation", s.Generation, "err", err)
		}
	}
	e.recorder.ObserveGeneration(e.runID, s, len(info.Parents), len(info.Mutants))
	e.log.Debug("generation",
		"generation", s.Generation,
		"best", s.BestReward,
		"mean", s.MeanReward,
		"elites", info.Elites,
		"losers", len(info.Losers),
		"mutants", len(info.Mutants))

	lc := e.cfg.Logging
	if lc.SaveChampionEvery > 0 && s.Generation%lc.SaveChampionEvery == 0 {
		if err := e.SaveChampion(filepath.Join(lc.ArtifactsDir, fmt.Sprintf("champion_gen%d.json", s.Generation))); err != nil {
			e.log.Warn("failed to save champion", "err", err)
		}
	}

	if e.store == nil {
		return nil
	}
	if err := e.store.AppendHistory(ctx, e.runID, s); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if every := e.cfg.Storage.SnapshotEvery; every > 0 && s.Generation%every == 0 {
		return e.Snapshot(ctx, rewards)
	}
	return nil
}

// Snapshot persists the population. The generator is reseeded with the
// stored seed so a resumed run continues exactly as this one will.
func (e *Engine) Snapshot(ctx context.Context, rewards []float64) error {
	if e.store == nil {
		return nil
	}
	next := e.rng.Int63()
	e.rng = rand.New(rand.NewSource(next))
	snap := storage.NewSnapshot(e.runID, e.generation, e.shape, e.pop.Snapshot(), rewards, next)
	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	e.log.Info("snapshot saved", "run_id", e.runID, "generation", e.generation)
	return nil
}

// Run advances the engine by generations steps, stopping early when ctx is
// cancelled
func (e *Engine) Run(ctx context.Context, generations int) error {
	for i := 0; i < generations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SaveChampion writes the best genotype seen so far
func (e *Engine) SaveChampion(path string) error {
	if e.champion == nil {
		return fmt.Errorf("no champion yet")
	}
	return logging.SaveChampion(path, e.cfg.Env.Name, e.champion, e.shape, e.championReward, e.generation)
}

// Champion returns a copy of the best genotype seen so far and its reward
func (e *Engine) Champion() (*genotype.Genotype, float64) {
	if e.champion == nil {
		return nil, math.Inf(-1)
	}
	return e.champion.Clone(), e.championReward
}

// Population exposes the current population
func (e *Engine) Population() *ga.Population { return e.pop }

// Shape returns the policy architecture
func (e *Engine) Shape() genotype.Shape { return e.shape }

// Generation returns the number of completed generations
func (e *Engine) Generation() int { return e.generation }

// RunID identifies the run in storage and metrics
func (e *Engine) RunID() string { return e.runID }

func equalInts(a, b []int) bool {
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
