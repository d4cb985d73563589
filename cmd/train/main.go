package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"evostrat/internal/config"
	"evostrat/internal/evolve"
	"evostrat/internal/logging"
	"evostrat/internal/metrics"
	"evostrat/internal/storage"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/crawler.yaml", "path to config file")
	generations := flag.Int("generations", 200, "number of generations to run")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	resume := flag.String("resume", "", "resume the run with this id from the store")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	if err := run(cfg, *configPath, *generations, *resume); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, generations int, resume string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewSlog(os.Stderr, cfg.Logging.Level)

	fmt.Printf("Evolution Strategy Trainer - Env: %s\n", cfg.Env.Name)
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Hidden: %v, Population: %d, Elites: %d, Selects: %d, Tournament: %d\n",
		cfg.NN.Hidden, cfg.ES.Population, cfg.ES.Elites, cfg.ES.Selects, cfg.ES.TournamentSize)
	fmt.Println("---")

	store, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer func() {
		if err := storage.CloseIfSupported(store); err != nil {
			log.Warn("close store", "err", err)
		}
	}()

	var summary *logging.Logger
	if cfg.Logging.EveryGenSummary {
		summary, err = logging.NewLogger(cfg.Logging.CSVPath, cfg.Logging.JSONPath, os.Stdout)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		if err := summary.Init(resume != ""); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer summary.Close()
	}

	recorder := metrics.NewRecorder()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.Error("metrics server", "err", err)
			}
		}()
	}

	opts := evolve.Options{
		Logger:  log,
		Summary: summary,
		Metrics: recorder,
		Store:   store,
		RunID:   resume,
	}
	var engine *evolve.Engine
	if resume != "" {
		engine, err = evolve.Resume(ctx, cfg, opts)
	} else {
		engine, err = evolve.New(ctx, cfg, opts)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Logging.ArtifactsDir, 0755); err != nil {
		return err
	}
	if err := cfg.WriteYAML(filepath.Join(cfg.Logging.ArtifactsDir, "config.yaml")); err != nil {
		log.Warn("failed to write config copy", "err", err)
	}

	startTime := time.Now()
	start := engine.Generation()
	runErr := engine.Run(ctx, generations)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if errors.Is(runErr, context.Canceled) {
		fmt.Println("Interrupted, saving state")
	}

	elapsed := time.Since(startTime)
	fmt.Println("---")
	fmt.Printf("Training complete! %d generations in %v (run %s)\n", engine.Generation()-start, elapsed, engine.RunID())

	// Persist the final population so the run can be resumed
	if err := engine.Snapshot(context.WithoutCancel(ctx), nil); err != nil {
		log.Warn("final snapshot failed", "err", err)
	}

	if champ, reward := engine.Champion(); champ != nil {
		fmt.Printf("Best ever: Reward=%.3f, ID=%s, Body=%s\n", reward, champ.ID, champ.Signature())
		championPath := filepath.Join(cfg.Logging.ArtifactsDir, "champion_final.json")
		if err := engine.SaveChampion(championPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save final champion: %v\n", err)
		}
	}
	return nil
}
