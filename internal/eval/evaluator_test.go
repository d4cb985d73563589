package eval

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"evostrat/internal/config"
	"evostrat/internal/env"
	"evostrat/internal/genotype"
)

func setup(t *testing.T, name string, n int) (*config.Config, env.Kind, genotype.Shape, []*genotype.Genotype) {
	t.Helper()
	cfg := config.Default()
	cfg.Env.Name = name
	cfg.Env.MaxSteps = 30
	cfg.Body.MaxBreadth = 3
	cfg.Eval.Workers = 2
	kind, err := env.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	shape := genotype.Shape{
		InputSize: kind.ObservationSize(cfg),
		UnitSizes: []int{4, kind.ActionSize(cfg)},
	}
	rng := rand.New(rand.NewSource(1))
	gs := make([]*genotype.Genotype, n)
	for i := range gs {
		gs[i] = genotype.Random(genotype.Options{
			Shape:           shape,
			InitialLogSigma: -1,
			WithBody:        kind.NeedsBody(),
			InitialBreadth:  2,
		}, rng)
	}
	return cfg, kind, shape, gs
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cfg, kind, shape, gs := setup(t, "snake", 6)
	ev := NewEvaluator(cfg, kind, shape, len(gs))

	first, err := ev.Evaluate(context.Background(), gs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := ev.Evaluate(context.Background(), gs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := range gs {
		if first.Rewards[i] != second.Rewards[i] {
			t.Fatalf("slot %d reward %v then %v", i, first.Rewards[i], second.Rewards[i])
		}
		if first.Base[i] != first.Rewards[i] || first.Energy[i] != 0 {
			t.Fatalf("snake slot %d should not decompose: base %v energy %v", i, first.Base[i], first.Energy[i])
		}
	}
}

func TestEvaluateRebuildsOnBodyChange(t *testing.T) {
	cfg, kind, shape, gs := setup(t, "crawler", 4)
	ev := NewEvaluator(cfg, kind, shape, len(gs))
	ctx := context.Background()

	res, err := ev.Evaluate(ctx, gs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Rebuilt != len(gs) {
		t.Fatalf("first generation rebuilt %d, want %d", res.Rebuilt, len(gs))
	}
	for i := range gs {
		if res.Rewards[i] != res.Base[i]-res.Energy[i] {
			t.Fatalf("slot %d reward does not decompose", i)
		}
	}

	// same topology, new segment length: updated in place
	gs[1].Body.Left.Lengths[0] *= 1.5
	res, err = ev.Evaluate(ctx, gs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Rebuilt != 0 {
		t.Fatalf("rebuilt %d without a topology change", res.Rebuilt)
	}

	gs[2].Body.Right = genotype.Limb{Structure: []int{2, 0, 0}, Lengths: []float64{1, 1}, Angles: []float64{0, 0}}
	res, err = ev.Evaluate(ctx, gs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Rebuilt != 1 {
		t.Fatalf("rebuilt %d, want 1", res.Rebuilt)
	}
}

func TestEvaluateErrors(t *testing.T) {
	cfg, kind, shape, gs := setup(t, "crawler", 3)
	ev := NewEvaluator(cfg, kind, shape, len(gs))

	if _, err := ev.Evaluate(context.Background(), gs[:2]); err == nil {
		t.Fatal("expected slot count mismatch")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ev.Evaluate(ctx, gs); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled evaluate = %v, want context.Canceled", err)
	}

	gs[0].Body = nil
	if _, err := ev.Evaluate(context.Background(), gs); err == nil {
		t.Fatal("expected error for a crawler without a body")
	}
}

func TestPlayMatchesEvaluate(t *testing.T) {
	cfg, kind, shape, gs := setup(t, "crawler", 2)
	ev := NewEvaluator(cfg, kind, shape, len(gs))
	res, err := ev.Evaluate(context.Background(), gs)
	if err != nil {
		t.Fatal(err)
	}

	r := env.NewReplay("crawler", uint32(cfg.Seed), gs[1].ID, gs[1].Signature())
	got, err := Play(cfg, kind, gs[1], shape, r)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if got != res.Rewards[1] {
		t.Fatalf("play reward %v, evaluate reward %v", got, res.Rewards[1])
	}
	if len(r.Steps) != cfg.Env.MaxSteps {
		t.Fatalf("replay steps = %d, want %d", len(r.Steps), cfg.Env.MaxSteps)
	}
}

func TestBenchmark(t *testing.T) {
	cfg, kind, shape, gs := setup(t, "snake", 1)
	cfg.Env.Snake.FruitEnabled = true
	agg, err := Benchmark(cfg, kind, gs[0], shape, []uint32{1, 2, 3})
	if err != nil {
		t.Fatalf("benchmark: %v", err)
	}
	if agg.NumEpisodes != 3 {
		t.Fatalf("episodes = %d, want 3", agg.NumEpisodes)
	}
	deaths := 0
	for _, n := range agg.DeathCounts {
		deaths += n
	}
	if deaths != 3 {
		t.Fatalf("death counts sum to %d, want 3", deaths)
	}

	cfg, kind, shape, gs = setup(t, "crawler", 1)
	if _, err := Benchmark(cfg, kind, gs[0], shape, []uint32{1}); err == nil {
		t.Fatal("expected crawler benchmark to be rejected")
	}
}

func TestNewPolicyChecksSizes(t *testing.T) {
	cfg, kind, shape, gs := setup(t, "crawler", 1)
	m, err := NewPolicy(cfg, kind, gs[0], shape)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if m.OutputSize() != kind.ActionSize(cfg) || m.GenomeSize() != len(gs[0].Flat()) {
		t.Fatalf("policy outputs %d, genome %d", m.OutputSize(), m.GenomeSize())
	}

	// a champion evolved for a broader body no longer fits
	cfg.Body.MaxBreadth = 4
	if _, err := NewPolicy(cfg, kind, gs[0], shape); err == nil {
		t.Fatal("expected size mismatch error")
	}
}
