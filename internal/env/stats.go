package env

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"evostrat/internal/config"
)

// DeathReason indicates how the snake died
type DeathReason int

const (
	DeathNone    DeathReason = iota
	DeathWall                // hit a wall
	DeathSelf                // hit own body
	DeathStall               // no fruit for too long
	DeathTimeout             // tick cap reached
)

func (d DeathReason) String() string {
	switch d {
	case DeathNone:
		return "none"
	case DeathWall:
		return "wall"
	case DeathSelf:
		return "self"
	case DeathStall:
		return "stall"
	case DeathTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// EpisodeStats captures the metrics of one snake episode
type EpisodeStats struct {
	Score       float64     // computed fitness score
	Fruits      int         // number of fruits eaten
	Ticks       int         // number of ticks survived
	ProgressSum float64     // cumulative distance improvement
	Death       DeathReason // how the episode ended
	Seed        uint32      // seed used for this episode
}

// AggregatedStats holds statistics across several episodes
type AggregatedStats struct {
	ScoreMean    float64
	ScoreStd     float64
	FruitsMean   float64
	TicksMean    float64
	ProgressMean float64
	DeathCounts  map[DeathReason]int
	NumEpisodes  int
}

// Aggregate computes statistics from several episodes
func Aggregate(episodes []EpisodeStats) AggregatedStats {
	agg := AggregatedStats{
		DeathCounts: make(map[DeathReason]int),
		NumEpisodes: len(episodes),
	}
	if len(episodes) == 0 {
		return agg
	}

	scores := make([]float64, len(episodes))
	fruits := make([]float64, len(episodes))
	ticks := make([]float64, len(episodes))
	progress := make([]float64, len(episodes))
	for i, ep := range episodes {
		scores[i] = ep.Score
		fruits[i] = float64(ep.Fruits)
		ticks[i] = float64(ep.Ticks)
		progress[i] = ep.ProgressSum
		agg.DeathCounts[ep.Death]++
	}

	agg.ScoreMean, agg.ScoreStd = stat.PopMeanStdDev(scores, nil)
	agg.FruitsMean = stat.Mean(fruits, nil)
	agg.TicksMean = stat.Mean(ticks, nil)
	agg.ProgressMean = stat.Mean(progress, nil)
	return agg
}

// RobustnessScore computes the ranking score: mean - lambda * std
func (a AggregatedStats) RobustnessScore(lambda float64) float64 {
	return a.ScoreMean - lambda*a.ScoreStd
}

// Fitness scores a snake episode for the configured track
func Fitness(stats EpisodeStats, f config.FitnessConfig) float64 {
	switch f.Mode {
	case "self":
		score := float64(stats.Ticks)
		switch stats.Death {
		case DeathSelf:
			score -= f.SelfPenalty
		case DeathWall:
			score -= f.WallPenalty * 0.33 // lighter wall penalty on the self track
		case DeathStall:
			score -= f.StallPenalty
		}
		return score
	case "fruit":
		return fruitScore(stats, f.FruitReward, float64(f.SurvivalCap), f.SurvivalW, f.ProgressW)
	case "multi":
		return fruitScore(stats, 8000, 60, 2, f.ProgressW)
	default:
		score := float64(stats.Ticks)
		if stats.Death == DeathWall {
			score -= f.WallPenalty
		}
		return score
	}
}

func fruitScore(stats EpisodeStats, fruitReward, survivalCap, survivalW, progressW float64) float64 {
	score := fruitReward * float64(stats.Fruits)
	score += survivalW * math.Min(float64(stats.Ticks), survivalCap)
	score += progressW * stats.ProgressSum

	switch stats.Death {
	case DeathWall, DeathSelf:
		score -= 300
	case DeathStall, DeathTimeout:
		score -= 150
	}
	return score
}
