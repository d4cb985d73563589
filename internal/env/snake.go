package env

import (
	"evostrat/internal/config"
	"evostrat/internal/genotype"
	"evostrat/internal/randutil"
)

type snakeKind struct{}

func (snakeKind) Name() string    { return "snake" }
func (snakeKind) NeedsBody() bool { return false }

func (snakeKind) ObservationSize(cfg *config.Config) int {
	return ObsDim(cfg.Env.Snake.Obs)
}

// ActionSize is one output per relative turn
func (snakeKind) ActionSize(*config.Config) int { return 3 }

func (snakeKind) New(cfg *config.Config, _ *genotype.Graphoid, seed uint32) (Environment, error) {
	return NewSnake(cfg.Env, seed), nil
}

// Snake adapts the grid game to the Environment interface. The action is the
// argmax over straight, left and right.
type Snake struct {
	game        *Game
	features    *FeatureExtractor
	fitness     config.FitnessConfig
	startLength int
}

// NewSnake creates a snake environment with a fixed fruit seed
func NewSnake(cfg config.EnvConfig, seed uint32) *Snake {
	s := cfg.Snake
	return &Snake{
		game:        NewGame(s.Width, s.Height, s.StartLength, cfg.MaxSteps, s.StallWindow, s.FruitEnabled, seed),
		features:    NewFeatureExtractor(s.Obs),
		fitness:     s.Fitness,
		startLength: s.StartLength,
	}
}

func (s *Snake) Reset() { s.game.Reset(s.startLength) }

func (s *Snake) Step(action []float64) {
	a := randutil.Argmax(action)
	if a < 0 || a > int(ActionRight) {
		a = int(ActionStraight)
	}
	s.game.Step(Action(a))
}

func (s *Snake) Terminal() bool { return !s.game.Alive }

func (s *Snake) Reward() float64 {
	return Fitness(s.game.Stats(), s.fitness)
}

func (s *Snake) Observation() []float64 {
	return append([]float64(nil), s.features.Extract(s.game)...)
}

// Stats exposes the underlying episode statistics
func (s *Snake) Stats() EpisodeStats {
	st := s.game.Stats()
	st.Score = s.Reward()
	return st
}

// Game exposes the grid for rendering
func (s *Snake) Game() *Game { return s.game }
