package env

import (
	"encoding/json"
	"fmt"
	"os"
)

// Replay stores the per-step trace of one deterministic episode
type Replay struct {
	Env      string       `json:"env"`
	Seed     uint32       `json:"seed"`
	Genotype string       `json:"genotype"`
	Body     string       `json:"body,omitempty"`
	Steps    []ReplayStep `json:"steps"`
	Final    float64      `json:"final_reward"`
	Base     float64      `json:"base_reward,omitempty"`
	Energy   float64      `json:"energy_cost,omitempty"`
}

// ReplayStep is one action and the cumulative reward after it
type ReplayStep struct {
	Action []float64 `json:"action"`
	Reward float64   `json:"reward"`
	Lowest *float64  `json:"lowest,omitempty"`
}

// NewReplay creates an empty replay for an episode
func NewReplay(envName string, seed uint32, genotypeID, body string) *Replay {
	return &Replay{
		Env:      envName,
		Seed:     seed,
		Genotype: genotypeID,
		Body:     body,
		Steps:    make([]ReplayStep, 0, 256),
	}
}

// Record appends one step
func (r *Replay) Record(action []float64, reward float64) {
	r.Steps = append(r.Steps, ReplayStep{
		Action: append([]float64(nil), action...),
		Reward: reward,
	})
}

// Finish stores the end-of-episode reward and, for decomposed environments,
// its components
func (r *Replay) Finish(e Environment) {
	r.Final = e.Reward()
	if d, ok := e.(Decomposed); ok {
		r.Base = d.BaseReward()
		r.Energy = d.EnergyCost()
	}
}

// Record plays e with policy and captures every step
func Record(e Environment, policy func([]float64) []float64, r *Replay) {
	crawler, _ := e.(*Crawler)
	Run(e, policy, func(_ int, action []float64, reward float64) {
		r.Record(action, reward)
		if crawler != nil {
			low := crawler.Lowest()
			r.Steps[len(r.Steps)-1].Lowest = &low
		}
	})
	r.Finish(e)
}

// Save writes the replay to a file
func (r *Replay) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadReplay loads a replay from a file
func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Replay
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode replay %s: %w", path, err)
	}
	return &r, nil
}
