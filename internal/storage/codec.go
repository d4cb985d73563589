package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"evostrat/internal/genotype"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Float encodes non-finite values as strings, which plain JSON numbers
// cannot carry
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("float %q: %w", s, err)
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func toFloats(xs []float64) []Float {
	out := make([]Float, len(xs))
	for i, x := range xs {
		out[i] = Float(x)
	}
	return out
}

func fromFloats(xs []Float) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

// EncodeGenotype flattens a genotype into its record
func EncodeGenotype(g *genotype.Genotype) GenotypeRecord {
	rec := GenotypeRecord{
		ID:                      g.ID,
		Weights:                 toFloats(g.Flat()),
		LogSigmas:               toFloats(g.LogSigmas),
		GenerationsSinceCreated: g.GenerationsSinceCreated,
		GenerationsSinceMutated: g.GenerationsSinceMutated,
	}
	if g.Body != nil {
		rec.Body = &BodyRecord{
			Left:        encodeLimb(g.Body.Left),
			Right:       encodeLimb(g.Body.Right),
			TorsoLength: Float(g.Body.TorsoLength),
		}
	}
	return rec
}

func encodeLimb(l genotype.Limb) LimbRecord {
	return LimbRecord{
		Structure: append([]int(nil), l.Structure...),
		Lengths:   toFloats(l.Lengths),
		Angles:    toFloats(l.Angles),
	}
}

// DecodeGenotype rebuilds a genotype, keeping its identity and counters
func DecodeGenotype(rec GenotypeRecord, shape genotype.Shape) (*genotype.Genotype, error) {
	var body *genotype.Graphoid
	if rec.Body != nil {
		left, err := genotype.NewLimb(rec.Body.Left.Structure, fromFloats(rec.Body.Left.Lengths), fromFloats(rec.Body.Left.Angles))
		if err != nil {
			return nil, fmt.Errorf("genotype %s left limb: %w", rec.ID, err)
		}
		right, err := genotype.NewLimb(rec.Body.Right.Structure, fromFloats(rec.Body.Right.Lengths), fromFloats(rec.Body.Right.Angles))
		if err != nil {
			return nil, fmt.Errorf("genotype %s right limb: %w", rec.ID, err)
		}
		body = &genotype.Graphoid{Left: left, Right: right, TorsoLength: float64(rec.Body.TorsoLength)}
	}
	g, err := genotype.FromFlat(fromFloats(rec.Weights), fromFloats(rec.LogSigmas), body, shape)
	if err != nil {
		return nil, fmt.Errorf("genotype %s: %w", rec.ID, err)
	}
	g.ID = rec.ID
	g.GenerationsSinceCreated = rec.GenerationsSinceCreated
	g.GenerationsSinceMutated = rec.GenerationsSinceMutated
	return g, nil
}

// NewSnapshot captures a population in slot order
func NewSnapshot(runID string, gen int, shape genotype.Shape, gs []*genotype.Genotype, rewards []float64, nextSeed int64) Snapshot {
	snap := Snapshot{
		VersionedRecord: VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           runID,
		Generation:      gen,
		InputSize:       shape.InputSize,
		UnitSizes:       append([]int(nil), shape.UnitSizes...),
		Genotypes:       make([]GenotypeRecord, len(gs)),
		Rewards:         toFloats(rewards),
		NextSeed:        nextSeed,
	}
	for i, g := range gs {
		snap.Genotypes[i] = EncodeGenotype(g)
	}
	return snap
}

// Shape returns the policy architecture the snapshot was taken with
func (s Snapshot) Shape() genotype.Shape {
	return genotype.Shape{InputSize: s.InputSize, UnitSizes: s.UnitSizes}
}

// Restore decodes every genotype of the snapshot
func (s Snapshot) Restore() ([]*genotype.Genotype, []float64, error) {
	gs := make([]*genotype.Genotype, len(s.Genotypes))
	for i, rec := range s.Genotypes {
		g, err := DecodeGenotype(rec, s.Shape())
		if err != nil {
			return nil, nil, fmt.Errorf("slot %d: %w", i, err)
		}
		gs[i] = g
	}
	return gs, fromFloats(s.Rewards), nil
}

func EncodeRun(r RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (RunRecord, error) {
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	if err := checkVersion(snap.VersionedRecord); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
