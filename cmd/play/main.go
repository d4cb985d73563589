package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"evostrat/internal/config"
	"evostrat/internal/env"
	"evostrat/internal/eval"
	"evostrat/internal/logging"
	"evostrat/internal/randutil"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/crawler.yaml", "path to config file")
	championPath := flag.String("champion", "artifacts/champion_final.json", "path to champion JSON")
	replayPath := flag.String("replay", "", "write the per-step replay to this JSON file")
	delay := flag.Int("delay", 100, "delay between frames in milliseconds")
	noDisplay := flag.Bool("no-display", false, "run without display (just print stats)")
	seeds := flag.Int("seeds", 0, "benchmark a snake champion over this many fruit seeds")
	lambda := flag.Float64("lambda", 0.5, "std penalty of the benchmark robustness score")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	champion, g, err := logging.LoadChampion(*championPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading champion: %v\n", err)
		os.Exit(1)
	}
	if champion.Env != "" && champion.Env != cfg.Env.Name {
		fmt.Fprintf(os.Stderr, "Champion was trained on %q, config selects %q\n", champion.Env, cfg.Env.Name)
		os.Exit(1)
	}

	kind, err := env.Lookup(cfg.Env.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	shape := champion.Shape()
	mlp, err := eval.NewPolicy(cfg, kind, g, shape)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Champion does not fit %s: %v\n", cfg.Env.Name, err)
		os.Exit(1)
	}

	fmt.Printf("Loaded champion %s from gen %d (reward=%.3f)\n", champion.ID, champion.Generation, champion.Reward)
	fmt.Printf("Config: %s, Env: %s, Seed: %d\n", *configPath, cfg.Env.Name, cfg.Seed)
	fmt.Printf("Policy: %d -> %v, Genome size: %d weights\n", mlp.InputSize, shape.UnitSizes, mlp.GenomeSize())
	if g.Body != nil {
		fmt.Printf("Body: %s\n", g.Signature())
	}
	fmt.Println()

	inst, err := kind.New(cfg, g.Body, uint32(cfg.Seed))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating environment: %v\n", err)
		os.Exit(1)
	}

	replay := env.NewReplay(cfg.Env.Name, uint32(cfg.Seed), g.ID, g.Signature())
	frameDelay := time.Duration(*delay) * time.Millisecond
	policy := func(obs []float64) []float64 {
		action := mlp.Predict(obs)
		if !*noDisplay {
			render(inst, action)
			time.Sleep(frameDelay)
		}
		return action
	}
	env.Record(inst, policy, replay)

	if !*noDisplay {
		render(inst, nil)
	}

	fmt.Println()
	fmt.Println("═══════════════════════════════════")
	fmt.Printf("  Episode over after %d steps\n", len(replay.Steps))
	fmt.Printf("  Reward: %.4f\n", replay.Final)
	if d, ok := inst.(env.Decomposed); ok {
		fmt.Printf("  Distance: %.4f, Energy: %.4f\n", d.BaseReward(), d.EnergyCost())
	}
	if s, ok := inst.(*env.Snake); ok {
		stats := s.Stats()
		fmt.Printf("  Death: %s, Ticks: %d, Fruits: %d\n", stats.Death, stats.Ticks, stats.Fruits)
	}
	fmt.Println("═══════════════════════════════════")

	if *seeds > 0 {
		list := make([]uint32, *seeds)
		for i := range list {
			list[i] = uint32(cfg.Seed) + uint32(i)
		}
		agg, err := eval.Benchmark(cfg, kind, g, shape, list)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Benchmark: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Benchmark over %d seeds: Score=%.1f±%.1f, Robust=%.1f, Ticks=%.1f, Fruits=%.2f\n",
			agg.NumEpisodes, agg.ScoreMean, agg.ScoreStd, agg.RobustnessScore(*lambda), agg.TicksMean, agg.FruitsMean)
		for reason, n := range agg.DeathCounts {
			fmt.Printf("  %s: %d\n", reason, n)
		}
	}

	if *replayPath != "" {
		if err := replay.Save(*replayPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save replay: %v\n", err)
		}
	}
}

func render(e env.Environment, action []float64) {
	switch inst := e.(type) {
	case *env.Snake:
		NewDisplay(inst.Game()).Render(action)
	case *env.Crawler:
		fmt.Printf("  x=%.3f lowest=%.3f reward=%.4f\n", inst.BaseReward(), inst.Lowest(), inst.Reward())
	}
}

// Display draws the snake grid in the terminal
type Display struct {
	game *env.Game
}

// NewDisplay creates a display for game
func NewDisplay(game *env.Game) *Display {
	return &Display{game: game}
}

// Render draws the game state to terminal
func (d *Display) Render(action []float64) {
	clearScreen()
	game := d.game

	// Build grid
	grid := make([][]rune, game.Height)
	for y := range grid {
		grid[y] = make([]rune, game.Width)
		for x := range grid[y] {
			grid[y][x] = '·'
		}
	}

	if game.FruitEnabled {
		fruit := game.Fruit
		if fruit.X >= 0 && fruit.X < game.Width && fruit.Y >= 0 && fruit.Y < game.Height {
			grid[fruit.Y][fruit.X] = '*'
		}
	}

	for i := len(game.Snake) - 1; i >= 0; i-- {
		p := game.Snake[i]
		if p.X >= 0 && p.X < game.Width && p.Y >= 0 && p.Y < game.Height {
			if i == 0 {
				grid[p.Y][p.X] = directionHead(game.Dir)
			} else {
				grid[p.Y][p.X] = '█'
			}
		}
	}

	fmt.Print("┌")
	for x := 0; x < game.Width; x++ {
		fmt.Print("──")
	}
	fmt.Println("┐")
	for y := range grid {
		fmt.Print("│")
		for _, c := range grid[y] {
			fmt.Printf(" %c", c)
		}
		fmt.Println("│")
	}
	fmt.Print("└")
	for x := 0; x < game.Width; x++ {
		fmt.Print("──")
	}
	fmt.Println("┘")

	actionDisplay := "---"
	if best := randutil.Argmax(action); len(action) == 3 && best >= 0 {
		actionDisplay = []string{"STRAIGHT", "LEFT", "RIGHT"}[best]
	}
	fmt.Printf("  Tick: %3d | Fruits: %d | Length: %d | Action: %s\n",
		game.Tick, game.FruitsEaten, len(game.Snake), actionDisplay)
	if !game.Alive {
		fmt.Printf("  DEAD: %s\n", game.DeathReason)
	}
}

func directionHead(dir env.Direction) rune {
	switch dir {
	case env.DirUp:
		return '▲'
	case env.DirRight:
		return '▶'
	case env.DirDown:
		return '▼'
	case env.DirLeft:
		return '◀'
	}
	return 'O'
}

func clearScreen() {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "cls")
	} else {
		cmd = exec.Command("clear")
	}
	cmd.Stdout = os.Stdout
	_ = cmd.Run()
}
