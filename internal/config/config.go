package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that cannot run a generation
var ErrInvalid = errors.New("invalid configuration")

// Config is the root configuration structure
type Config struct {
	Seed    int64         `yaml:"seed"`
	Env     EnvConfig     `yaml:"env"`
	NN      NNConfig      `yaml:"nn"`
	ES      ESConfig      `yaml:"es"`
	Body    BodyConfig    `yaml:"body"`
	Eval    EvalConfig    `yaml:"eval"`
	Logging LogConfig     `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EnvConfig selects and parameterizes the environment
type EnvConfig struct {
	Name     string        `yaml:"name"` // snake|crawler
	MaxSteps int           `yaml:"max_steps"`
	Snake    SnakeConfig   `yaml:"snake"`
	Crawler  CrawlerConfig `yaml:"crawler"`
}

// SnakeConfig defines grid snake parameters
type SnakeConfig struct {
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	StartLength  int           `yaml:"start_length"`
	StallWindow  int           `yaml:"stall_window"`
	FruitEnabled bool          `yaml:"fruit_enabled"`
	Obs          string        `yaml:"obs"` // wall_min|self_min|fruit_min|multi_min
	Fitness      FitnessConfig `yaml:"fitness"`
}

// FitnessConfig defines snake fitness function parameters
type FitnessConfig struct {
	Mode         string  `yaml:"mode"` // wall|self|fruit|multi
	WallPenalty  float64 `yaml:"wall_penalty"`
	SelfPenalty  float64 `yaml:"self_penalty"`
	StallPenalty float64 `yaml:"stall_penalty"`
	FruitReward  float64 `yaml:"fruit_reward"`
	SurvivalCap  int     `yaml:"survival_cap"`
	SurvivalW    float64 `yaml:"survival_w"`
	ProgressW    float64 `yaml:"progress_w"`
}

// CrawlerConfig defines the kinematic graphoid environment
type CrawlerConfig struct {
	EnergyCoef float64 `yaml:"energy_coef"`
	MaxOffset  float64 `yaml:"max_offset"` // joint actuation range in radians
	Period     int     `yaml:"period"`     // steps per clock cycle in observations
}

// NNConfig defines policy network architecture
type NNConfig struct {
	Hidden []int `yaml:"hidden"`
}

// ESConfig defines evolution strategy parameters
type ESConfig struct {
	Population     int  `yaml:"population"`
	Elites         int  `yaml:"elites"`
	Selects        int  `yaml:"selects"`
	TournamentSize int  `yaml:"tournament_size"`
	Parents        int  `yaml:"parents"`
	Kappa          int  `yaml:"kappa"`
	Comma          bool `yaml:"comma"`
	MutateElites   bool `yaml:"mutate_elites"`

	MutationProb    float64 `yaml:"mutation_prob"` // percent
	TauCoef         float64 `yaml:"tau_coef"`
	Tau0Coef        float64 `yaml:"tau0_coef"`
	InitialLogSigma float64 `yaml:"initial_log_sigma"`

	HaltOnNonFiniteSigma bool `yaml:"halt_on_nonfinite_sigma"`
}

// BodyConfig defines graphoid limits
type BodyConfig struct {
	MaxBreadth     int     `yaml:"max_breadth"`
	InitialBreadth int     `yaml:"initial_breadth"`
	MinLength      float64 `yaml:"min_length"`
}

// EvalConfig defines evaluation parameters
type EvalConfig struct {
	Workers int `yaml:"workers"`
}

// LogConfig defines run output
type LogConfig struct {
	Level             string `yaml:"level"` // debug|info|warn|error
	EveryGenSummary   bool   `yaml:"every_gen_summary"`
	SaveChampionEvery int    `yaml:"save_champion_every"`
	ArtifactsDir      string `yaml:"artifacts_dir"`
	CSVPath           string `yaml:"csv_path"`
	JSONPath          string `yaml:"json_path"`
}

// StorageConfig defines population persistence
type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory|sqlite
	Path          string `yaml:"path"`
	SnapshotEvery int    `yaml:"snapshot_every"`
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Load reads a YAML config file and returns a validated Config
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the defaults alone
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Seed == 0 {
		cfg.Seed = 1337
	}
	if cfg.Env.Name == "" {
		cfg.Env.Name = "crawler"
	}
	if cfg.Env.MaxSteps == 0 {
		cfg.Env.MaxSteps = 200
	}
	if cfg.Env.Snake.Width == 0 {
		cfg.Env.Snake.Width = 10
	}
	if cfg.Env.Snake.Height == 0 {
		cfg.Env.Snake.Height = 10
	}
	if cfg.Env.Snake.StartLength == 0 {
		cfg.Env.Snake.StartLength = 1
	}
	if cfg.Env.Snake.StallWindow == 0 {
		cfg.Env.Snake.StallWindow = 9999
	}
	if cfg.Env.Snake.Obs == "" {
		cfg.Env.Snake.Obs = "wall_min"
	}
	applyFitnessDefaults(&cfg.Env.Snake.Fitness)
	if cfg.Env.Crawler.EnergyCoef == 0 {
		cfg.Env.Crawler.EnergyCoef = 0.001
	}
	if cfg.Env.Crawler.MaxOffset == 0 {
		cfg.Env.Crawler.MaxOffset = 0.8
	}
	if cfg.Env.Crawler.Period == 0 {
		cfg.Env.Crawler.Period = 20
	}
	if len(cfg.NN.Hidden) == 0 {
		cfg.NN.Hidden = []int{16}
	}
	if cfg.ES.Population == 0 {
		cfg.ES.Population = 64
	}
	if cfg.ES.Elites == 0 {
		cfg.ES.Elites = 2
	}
	if cfg.ES.Selects == 0 {
		cfg.ES.Selects = cfg.ES.Population / 2
	}
	if cfg.ES.TournamentSize == 0 {
		cfg.ES.TournamentSize = 3
	}
	if cfg.ES.Parents == 0 {
		cfg.ES.Parents = 2
	}
	if cfg.ES.Kappa == 0 {
		cfg.ES.Kappa = 5
	}
	if cfg.ES.MutationProb == 0 {
		cfg.ES.MutationProb = 10
	}
	if cfg.ES.TauCoef == 0 {
		cfg.ES.TauCoef = 1
	}
	if cfg.ES.Tau0Coef == 0 {
		cfg.ES.Tau0Coef = 1
	}
	if cfg.ES.InitialLogSigma == 0 {
		cfg.ES.InitialLogSigma = -2.3 // sigma ~ 0.1
	}
	if cfg.Body.MaxBreadth == 0 {
		cfg.Body.MaxBreadth = 6
	}
	if cfg.Body.InitialBreadth == 0 {
		cfg.Body.InitialBreadth = 2
	}
	if cfg.Body.MinLength == 0 {
		cfg.Body.MinLength = 0.2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ArtifactsDir == "" {
		cfg.Logging.ArtifactsDir = "artifacts"
	}
	if cfg.Logging.SaveChampionEvery == 0 {
		cfg.Logging.SaveChampionEvery = 50
	}
	if cfg.Logging.CSVPath == "" {
		cfg.Logging.CSVPath = "runs/run.csv"
	}
	if cfg.Logging.JSONPath == "" {
		cfg.Logging.JSONPath = "runs/run.jsonl"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "runs/evostrat.db"
	}
	if cfg.Storage.SnapshotEvery == 0 {
		cfg.Storage.SnapshotEvery = 10
	}
}

func applyFitnessDefaults(f *FitnessConfig) {
	if f.Mode == "" {
		f.Mode = "wall"
	}
	if f.WallPenalty == 0 {
		f.WallPenalty = 500
	}
	if f.SelfPenalty == 0 {
		f.SelfPenalty = 600
	}
	if f.StallPenalty == 0 {
		f.StallPenalty = 100
	}
	if f.FruitReward == 0 {
		f.FruitReward = 5000
	}
	if f.SurvivalCap == 0 {
		f.SurvivalCap = 40
	}
	if f.SurvivalW == 0 {
		f.SurvivalW = 2.0
	}
	if f.ProgressW == 0 {
		f.ProgressW = 10.0
	}
}

// Validate rejects settings that would leave a generation without
// survivors, parents or a valid body repair
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	es := c.ES
	check(es.Population >= 2, "es.population %d < 2", es.Population)
	check(es.Selects >= 1, "es.selects %d < 1: no survivors", es.Selects)
	check(es.Selects <= es.Population, "es.selects %d > population %d", es.Selects, es.Population)
	check(es.Elites >= 0 && es.Elites <= es.Selects, "es.elites %d outside [0, selects]", es.Elites)
	check(!es.Comma || es.Elites >= 1, "es.comma needs at least one elite to carry over")
	check(es.TournamentSize >= 1, "es.tournament_size %d < 1", es.TournamentSize)
	check(es.Parents >= 1, "es.parents %d < 1: empty mating pool", es.Parents)
	check(es.Kappa >= 1, "es.kappa %d < 1", es.Kappa)
	check(es.MutationProb >= 0 && es.MutationProb <= 100, "es.mutation_prob %v outside [0, 100]", es.MutationProb)
	check(es.TauCoef >= 0 && es.Tau0Coef >= 0, "es.tau_coef and es.tau0_coef must be non-negative")

	check(c.Body.MaxBreadth >= 1, "body.max_breadth %d < 1", c.Body.MaxBreadth)
	check(c.Body.InitialBreadth >= 1 && c.Body.InitialBreadth <= c.Body.MaxBreadth,
		"body.initial_breadth %d outside [1, max_breadth]", c.Body.InitialBreadth)
	check(c.Body.MinLength > 0 && c.Body.MinLength <= 3, "body.min_length %v outside (0, 3]", c.Body.MinLength)

	check(c.Env.MaxSteps >= 1, "env.max_steps %d < 1", c.Env.MaxSteps)
	for i, h := range c.NN.Hidden {
		check(h >= 1, "nn.hidden[%d] = %d < 1", i, h)
	}
	check(c.Storage.Backend == "memory" || c.Storage.Backend == "sqlite",
		"storage.backend %q is not memory or sqlite", c.Storage.Backend)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// WriteYAML saves the configuration next to run output
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
