// Package env defines the episodic environments genotypes are evaluated in.
//
// An environment is reset once per evaluation, stepped with the network's
// output until it reports a terminal state, and then read for its
// cumulative reward. Environments that model a body are built from a
// genotype's graphoid and must be rebuilt when the body plan changes.
package env

import (
	"errors"
	"fmt"
	"sort"

	"evostrat/internal/config"
	"evostrat/internal/genotype"
)

// ErrUnknownEnvironment is returned for an environment name with no factory
var ErrUnknownEnvironment = errors.New("unknown environment")

// Environment is one episodic task instance. It is not safe for concurrent
// use; each evaluation slot owns its own instance.
type Environment interface {
	Reset()
	Step(action []float64)
	Terminal() bool
	Reward() float64
	Observation() []float64
}

// Decomposed is implemented by environments whose reward splits into a task
// term and an actuation cost
type Decomposed interface {
	BaseReward() float64
	EnergyCost() float64
}

// Kind describes an environment family and builds instances of it
type Kind interface {
	Name() string
	NeedsBody() bool
	ObservationSize(cfg *config.Config) int
	ActionSize(cfg *config.Config) int
	New(cfg *config.Config, body *genotype.Graphoid, seed uint32) (Environment, error)
}

var registry = map[string]Kind{
	"snake":   snakeKind{},
	"crawler": crawlerKind{},
}

// Lookup returns the environment family registered under name
func Lookup(name string) (Kind, error) {
	k, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownEnvironment, name, Names())
	}
	return k, nil
}

// Names lists the registered environments
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run plays one episode from reset to terminal and returns the final reward.
// policy maps an observation to an action.
func Run(e Environment, policy func([]float64) []float64, onStep func(step int, action []float64, reward float64)) float64 {
	e.Reset()
	for step := 0; !e.Terminal(); step++ {
		action := policy(e.Observation())
		e.Step(action)
		if onStep != nil {
			onStep(step, action, e.Reward())
		}
	}
	return e.Reward()
}
