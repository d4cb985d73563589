package env

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"evostrat/internal/config"
	"evostrat/internal/genotype"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"snake", "crawler"} {
		k, err := Lookup(name)
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		if k.Name() != name {
			t.Fatalf("kind name = %q, want %q", k.Name(), name)
		}
	}
	if _, err := Lookup("pendulum"); !errors.Is(err, ErrUnknownEnvironment) {
		t.Fatalf("lookup pendulum = %v, want ErrUnknownEnvironment", err)
	}
}

func TestSnakeStraightHitsWall(t *testing.T) {
	cfg := config.Default()
	cfg.Env.Name = "snake"
	k, _ := Lookup("snake")
	e, err := k.New(cfg, nil, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	straight := func([]float64) []float64 { return []float64{1, 0, 0} }
	reward := Run(e, straight, nil)

	st := e.(*Snake).Stats()
	if st.Death != DeathWall {
		t.Fatalf("death = %v, want wall", st.Death)
	}
	// centre of a 10-wide grid is x=5; the sixth move leaves the grid
	if st.Ticks != 5 {
		t.Fatalf("ticks = %d, want 5", st.Ticks)
	}
	if want := 5.0 - cfg.Env.Snake.Fitness.WallPenalty; reward != want {
		t.Fatalf("reward = %v, want %v", reward, want)
	}
	if len(e.Observation()) != k.ObservationSize(cfg) {
		t.Fatalf("observation size = %d, want %d", len(e.Observation()), k.ObservationSize(cfg))
	}
}

func TestSnakeResetIsDeterministic(t *testing.T) {
	cfg := config.Default()
	cfg.Env.Snake.FruitEnabled = true
	cfg.Env.Snake.Obs = "multi_min"
	cfg.Env.Snake.Fitness.Mode = "fruit"
	s := NewSnake(cfg.Env, 42)

	rng := rand.New(rand.NewSource(3))
	actions := make([][]float64, 40)
	for i := range actions {
		actions[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	play := func() float64 {
		i := 0
		return Run(s, func([]float64) []float64 {
			a := actions[i%len(actions)]
			i++
			return a
		}, nil)
	}
	first := play()
	if second := play(); first != second {
		t.Fatalf("rewards differ across resets: %v vs %v", first, second)
	}
}

func TestFitnessModes(t *testing.T) {
	f := config.Default().Env.Snake.Fitness
	tests := []struct {
		mode  string
		stats EpisodeStats
		want  float64
	}{
		{"wall", EpisodeStats{Ticks: 10, Death: DeathWall}, 10 - f.WallPenalty},
		{"wall", EpisodeStats{Ticks: 10, Death: DeathTimeout}, 10},
		{"self", EpisodeStats{Ticks: 10, Death: DeathSelf}, 10 - f.SelfPenalty},
		{"self", EpisodeStats{Ticks: 10, Death: DeathStall}, 10 - f.StallPenalty},
		{"fruit", EpisodeStats{Fruits: 1, Ticks: 100, Death: DeathWall},
			f.FruitReward + f.SurvivalW*float64(f.SurvivalCap) - 300},
		{"multi", EpisodeStats{Fruits: 2, Ticks: 10, ProgressSum: 1, Death: DeathTimeout},
			16000 + 20 + f.ProgressW - 150},
	}
	for _, tt := range tests {
		f.Mode = tt.mode
		if got := Fitness(tt.stats, f); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s fitness(%+v) = %v, want %v", tt.mode, tt.stats, got, tt.want)
		}
	}
}

func TestAggregate(t *testing.T) {
	agg := Aggregate([]EpisodeStats{
		{Score: 1, Ticks: 2, Death: DeathWall},
		{Score: 3, Ticks: 4, Death: DeathWall},
	})
	if agg.ScoreMean != 2 || agg.ScoreStd != 1 || agg.TicksMean != 3 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if agg.DeathCounts[DeathWall] != 2 {
		t.Fatalf("death counts = %v", agg.DeathCounts)
	}
	if got := agg.RobustnessScore(0.5); got != 1.5 {
		t.Fatalf("robustness = %v, want 1.5", got)
	}
	if empty := Aggregate(nil); empty.NumEpisodes != 0 || empty.DeathCounts == nil {
		t.Fatalf("empty aggregate = %+v", empty)
	}
}

func testCrawlerConfig() *config.Config {
	cfg := config.Default()
	cfg.Body.MaxBreadth = 3
	cfg.Env.MaxSteps = 50
	return cfg
}

func testBody() *genotype.Graphoid {
	return &genotype.Graphoid{
		Left:        genotype.Limb{Structure: []int{1, 1, 0}, Lengths: []float64{1, 0.5}, Angles: []float64{0.2, -0.1}},
		Right:       genotype.Limb{Structure: []int{2, 0, 0}, Lengths: []float64{1, 1}, Angles: []float64{0.3, -0.4}},
		TorsoLength: 1,
	}
}

func TestCrawlerIdleBodyStaysPut(t *testing.T) {
	cfg := testCrawlerConfig()
	k, _ := Lookup("crawler")
	e, err := k.New(cfg, testBody(), 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	idle := make([]float64, k.ActionSize(cfg))
	steps := 0
	reward := Run(e, func([]float64) []float64 { return idle }, func(int, []float64, float64) { steps++ })
	if steps != cfg.Env.MaxSteps {
		t.Fatalf("steps = %d, want %d", steps, cfg.Env.MaxSteps)
	}
	if reward != 0 {
		t.Fatalf("idle reward = %v, want 0", reward)
	}
	if got := len(e.Observation()); got != k.ObservationSize(cfg) {
		t.Fatalf("observation size = %d, want %d", got, k.ObservationSize(cfg))
	}
}

func TestCrawlerRewardDecomposes(t *testing.T) {
	cfg := testCrawlerConfig()
	c, err := NewCrawler(testBody(), cfg.Body.MaxBreadth, cfg.Env.MaxSteps, cfg.Env.Crawler)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	gait := func(obs []float64) []float64 {
		// drive every joint from the clock
		a := make([]float64, 2*cfg.Body.MaxBreadth)
		for i := range a {
			a[i] = 2 * obs[len(obs)-2]
		}
		return a
	}

	first := Run(c, gait, nil)
	if c.BaseReward() == 0 {
		t.Fatal("a periodic gait should move the torso")
	}
	if c.EnergyCost() <= 0 {
		t.Fatal("energy cost must be positive for a non-zero action")
	}
	if math.Abs(first-(c.BaseReward()-c.EnergyCost())) > 1e-12 {
		t.Fatalf("reward %v != base %v - energy %v", first, c.BaseReward(), c.EnergyCost())
	}
	if second := Run(c, gait, nil); second != first {
		t.Fatalf("reward not reproducible after reset: %v vs %v", first, second)
	}
}

func TestCrawlerRejectsBadBodies(t *testing.T) {
	cfg := testCrawlerConfig()
	if _, err := NewCrawler(nil, 3, 10, cfg.Env.Crawler); err == nil {
		t.Fatal("expected error without a body")
	}
	broad := testBody()
	broad.Right = genotype.Limb{
		Structure: []int{4, 0, 0, 0, 0},
		Lengths:   []float64{1, 1, 1, 1},
		Angles:    []float64{0, 0, 0, 0},
	}
	if _, err := NewCrawler(broad, 3, 10, cfg.Env.Crawler); !errors.Is(err, genotype.ErrInvariant) {
		t.Fatalf("broad body error = %v, want ErrInvariant", err)
	}
}

func TestReplaySaveLoad(t *testing.T) {
	cfg := testCrawlerConfig()
	cfg.Env.MaxSteps = 5
	body := testBody()
	c, err := NewCrawler(body, cfg.Body.MaxBreadth, cfg.Env.MaxSteps, cfg.Env.Crawler)
	if err != nil {
		t.Fatal(err)
	}
	r := NewReplay("crawler", 0, "g1", body.Signature())
	Record(c, func([]float64) []float64 { return []float64{1, -1, 0.5, 0, 0, 0} }, r)
	if len(r.Steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(r.Steps))
	}
	if r.Steps[0].Lowest == nil {
		t.Fatal("crawler replay must record the lowest joint")
	}
	if r.Final != r.Base-r.Energy {
		t.Fatalf("final %v != base %v - energy %v", r.Final, r.Base, r.Energy)
	}

	path := filepath.Join(t.TempDir(), "replay.json")
	if err := r.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadReplay(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Body != body.Signature() || len(loaded.Steps) != 5 || loaded.Final != r.Final {
		t.Fatalf("loaded replay = %+v", loaded)
	}
}
