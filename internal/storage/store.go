// Package storage persists run metadata, population snapshots and the
// per-generation history so a run can be resumed.
package storage

import (
	"context"

	"evostrat/internal/logging"
)

// Store defines persistence operations for evolution runs
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, runID string) (Snapshot, bool, error)
	AppendHistory(ctx context.Context, runID string, summary logging.GenerationSummary) error
	GetHistory(ctx context.Context, runID string) ([]logging.GenerationSummary, error)
}

// VersionedRecord tags persisted payloads
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one run
type RunRecord struct {
	VersionedRecord
	ID         string `json:"id"`
	Env        string `json:"env"`
	Seed       int64  `json:"seed"`
	Config     string `json:"config"` // YAML
	Generation int    `json:"generation"`
	CreatedAt  int64  `json:"created_at"`
}

// GenotypeRecord is the persisted form of a genotype
type GenotypeRecord struct {
	ID                      string      `json:"id"`
	Weights                 []Float     `json:"weights"`
	LogSigmas               []Float     `json:"log_sigmas"`
	Body                    *BodyRecord `json:"body,omitempty"`
	GenerationsSinceCreated int         `json:"generations_since_created"`
	GenerationsSinceMutated int         `json:"generations_since_mutated"`
}

// BodyRecord is the persisted form of a graphoid
type BodyRecord struct {
	Left        LimbRecord `json:"left"`
	Right       LimbRecord `json:"right"`
	TorsoLength Float      `json:"torso_length"`
}

// LimbRecord is the persisted form of one limb
type LimbRecord struct {
	Structure []int   `json:"structure"`
	Lengths   []Float `json:"lengths"`
	Angles    []Float `json:"angles"`
}

// Snapshot is the population after a completed generation. Slot order is
// preserved; Rewards are the last evaluated rewards of each slot.
type Snapshot struct {
	VersionedRecord
	RunID      string           `json:"run_id"`
	Generation int              `json:"generation"`
	InputSize  int              `json:"input_size"`
	UnitSizes  []int            `json:"unit_sizes"`
	Genotypes  []GenotypeRecord `json:"genotypes"`
	Rewards    []Float          `json:"rewards"`
	NextSeed   int64            `json:"next_seed"`
}
