package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"evostrat/internal/genotype"
	"evostrat/internal/randutil"
)

// Logger writes per-generation summaries as CSV rows, JSON lines and a
// console line
type Logger struct {
	csvPath     string
	jsonPath    string
	csvFile     *os.File
	jsonFile    *os.File
	console     io.Writer
	wroteHeader bool
	initialized bool
}

// NewLogger creates a logger and its output directories
func NewLogger(csvPath, jsonPath string, console io.Writer) (*Logger, error) {
	for _, p := range []string{csvPath, jsonPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, err
		}
	}
	if console == nil {
		console = io.Discard
	}
	return &Logger{csvPath: csvPath, jsonPath: jsonPath, console: console}, nil
}

// Init opens the log files. With appendMode set, existing files are extended
// and the CSV header is not repeated.
func (l *Logger) Init(appendMode bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if fi, err := os.Stat(l.csvPath); err == nil && fi.Size() > 0 {
			l.wroteHeader = true
		}
	}

	var err error
	if l.csvFile, err = os.OpenFile(l.csvPath, flags, 0644); err != nil {
		return fmt.Errorf("opening %s: %w", l.csvPath, err)
	}
	if l.jsonFile, err = os.OpenFile(l.jsonPath, flags, 0644); err != nil {
		l.csvFile.Close()
		return fmt.Errorf("opening %s: %w", l.jsonPath, err)
	}
	l.initialized = true
	return nil
}

// Close closes all log files
func (l *Logger) Close() {
	if l.csvFile != nil {
		l.csvFile.Close()
	}
	if l.jsonFile != nil {
		l.jsonFile.Close()
	}
}

// GenerationSummary holds per-generation statistics
type GenerationSummary struct {
	Generation       int     `csv:"generation" json:"generation"`
	BestReward       float64 `csv:"best_reward" json:"best_reward"`
	MeanReward       float64 `csv:"mean_reward" json:"mean_reward"`
	StdReward        float64 `csv:"std_reward" json:"std_reward"`
	NonFinite        int     `csv:"non_finite" json:"non_finite"`
	MeanEnergy       float64 `csv:"mean_energy" json:"mean_energy"`
	CrossoverSuccess float64 `csv:"crossover_success" json:"crossover_success"`
	MutationSuccess  float64 `csv:"mutation_success" json:"mutation_success"`
	MeanLogSigmaW    float64 `csv:"mean_log_sigma_hidden" json:"mean_log_sigma_hidden"`
	MeanLogSigmaOut  float64 `csv:"mean_log_sigma_output" json:"mean_log_sigma_output"`
	MeanLogSigmaBody float64 `csv:"mean_log_sigma_body" json:"mean_log_sigma_body"`
	MeanNodes        float64 `csv:"mean_nodes" json:"mean_nodes"`
	MeanAge          float64 `csv:"mean_age" json:"mean_age"`
	Rebuilt          int     `csv:"rebuilt" json:"rebuilt"`
	BestID           string  `csv:"best_id" json:"best_id"`
	BestBody         string  `csv:"best_body" json:"best_body,omitempty"`
}

// Summarize computes statistics for one evaluated generation. Non-finite
// rewards are counted and left out of the mean and spread.
func Summarize(gen int, genotypes []*genotype.Genotype, rewards, energy []float64) GenerationSummary {
	s := GenerationSummary{Generation: gen, BestReward: math.Inf(-1)}

	finite := make([]float64, 0, len(rewards))
	for _, r := range rewards {
		if randutil.IsFinite(r) {
			finite = append(finite, r)
		} else {
			s.NonFinite++
		}
	}
	if len(finite) > 0 {
		s.MeanReward, s.StdReward = stat.PopMeanStdDev(finite, nil)
		s.BestReward = floats.Max(finite)
	}
	if len(energy) > 0 {
		s.MeanEnergy = stat.Mean(energy, nil)
	}

	ranks := randutil.RankDescending(rewards)
	if len(ranks) > 0 && ranks[0] < len(genotypes) {
		best := genotypes[ranks[0]]
		s.BestID = best.ID
		s.BestBody = best.Signature()
	}

	var hidden, out, body, nodes, age []float64
	for _, g := range genotypes {
		hidden = append(hidden, g.LogSigmas[genotype.SigmaHidden])
		out = append(out, g.LogSigmas[genotype.SigmaOutput])
		if len(g.LogSigmas) > genotype.SigmaGrow {
			body = append(body, stat.Mean(g.LogSigmas[genotype.SigmaGrow:], nil))
		}
		nodes = append(nodes, float64(g.Body.Nodes()))
		age = append(age, float64(g.GenerationsSinceCreated))
	}
	if len(genotypes) > 0 {
		s.MeanLogSigmaW = stat.Mean(hidden, nil)
		s.MeanLogSigmaOut = stat.Mean(out, nil)
		s.MeanNodes = stat.Mean(nodes, nil)
		s.MeanAge = stat.Mean(age, nil)
	}
	if len(body) > 0 {
		s.MeanLogSigmaBody = stat.Mean(body, nil)
	}
	return s
}

// LogGeneration writes a summary to every sink
func (l *Logger) LogGeneration(s GenerationSummary) error {
	if !l.initialized {
		return nil
	}

	records := []GenerationSummary{s}
	if !l.wroteHeader {
		if err := gocsv.Marshal(records, l.csvFile); err != nil {
			return fmt.Errorf("writing summary csv: %w", err)
		}
		l.wroteHeader = true
	} else if err := gocsv.MarshalWithoutHeaders(records, l.csvFile); err != nil {
		return fmt.Errorf("writing summary csv: %w", err)
	}

	line, err := json.Marshal(s.Finite())
	if err != nil {
		return fmt.Errorf("writing summary json: %w", err)
	}
	if _, err := l.jsonFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing summary json: %w", err)
	}

	fmt.Fprintf(l.console, "Gen %4d | Best: %9.3f | Mean: %9.3f | Std: %8.3f | NaN: %d | X: %.2f | M: %.2f | logσ: %.2f/%.2f/%.2f | Nodes: %.1f\n",
		s.Generation, s.BestReward, s.MeanReward, s.StdReward, s.NonFinite,
		s.CrossoverSuccess, s.MutationSuccess,
		s.MeanLogSigmaW, s.MeanLogSigmaOut, s.MeanLogSigmaBody, s.MeanNodes)
	return nil
}

// Finite zeroes the non-finite values encoding/json refuses to encode.
// The CSV row keeps them.
func (s GenerationSummary) Finite() GenerationSummary {
	for _, v := range []*float64{
		&s.BestReward, &s.MeanReward, &s.StdReward, &s.MeanEnergy,
		&s.MeanLogSigmaW, &s.MeanLogSigmaOut, &s.MeanLogSigmaBody,
	} {
		if !randutil.IsFinite(*v) {
			*v = 0
		}
	}
	return s
}

// Champion is the saved form of the best genotype
type Champion struct {
	Generation int                `json:"generation"`
	Env        string             `json:"env"`
	Reward     float64            `json:"reward"`
	ID         string             `json:"id"`
	InputSize  int                `json:"input_size"`
	UnitSizes  []int              `json:"unit_sizes"`
	Weights    []float64          `json:"weights"`
	LogSigmas  []float64          `json:"log_sigmas"`
	Body       *genotype.Graphoid `json:"body,omitempty"`
}

// SaveChampion saves a genotype so it can be replayed later
func SaveChampion(path, envName string, g *genotype.Genotype, shape genotype.Shape, reward float64, gen int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if !randutil.IsFinite(reward) {
		reward = 0
	}
	data, err := json.MarshalIndent(Champion{
		Generation: gen,
		Env:        envName,
		Reward:     reward,
		ID:         g.ID,
		InputSize:  shape.InputSize,
		UnitSizes:  shape.UnitSizes,
		Weights:    g.Flat(),
		LogSigmas:  g.LogSigmas,
		Body:       g.Body,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadChampion restores a saved genotype and its policy shape
func LoadChampion(path string) (*Champion, *genotype.Genotype, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var c Champion
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, nil, fmt.Errorf("decode champion %s: %w", path, err)
	}
	g, err := genotype.FromFlat(c.Weights, c.LogSigmas, c.Body, c.Shape())
	if err != nil {
		return nil, nil, fmt.Errorf("champion %s: %w", path, err)
	}
	g.ID = c.ID
	return &c, g, nil
}

// Shape returns the saved policy architecture
func (c *Champion) Shape() genotype.Shape {
	return genotype.Shape{InputSize: c.InputSize, UnitSizes: c.UnitSizes}
}

// NewSlog builds the process logger for the configured level
func NewSlog(w io.Writer, level string) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}
