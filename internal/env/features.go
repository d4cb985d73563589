package env

// FeatureExtractor builds snake observation vectors for one observation set
type FeatureExtractor struct {
	obsType string
	buffer  []float64
}

// NewFeatureExtractor creates a feature extractor for the given observation type
func NewFeatureExtractor(obsType string) *FeatureExtractor {
	return &FeatureExtractor{
		obsType: obsType,
		buffer:  make([]float64, ObsDim(obsType)),
	}
}

// ObsDim returns the observation dimension for the given type
func ObsDim(obsType string) int {
	switch obsType {
	case "self_min", "fruit_min":
		return 6
	case "multi_min":
		return 10
	default:
		return 3
	}
}

// Extract fills and returns the internal buffer; callers must copy it
// before the next call
func (f *FeatureExtractor) Extract(g *Game) []float64 {
	b := f.buffer
	switch f.obsType {
	case "self_min":
		f.dangers(g, b[0:3])
		f.rays(g, b[3:6])
	case "fruit_min":
		b[0], b[1] = g.FruitDirection()
		f.dangers(g, b[2:5])
		b[5] = g.LengthNorm()
	case "multi_min":
		f.dangers(g, b[0:3])
		f.rays(g, b[3:6])
		b[6], b[7] = g.FruitDirection()
		b[8] = g.FruitDistanceNorm()
		b[9] = g.LengthNorm()
	default:
		// walls only
		b[0] = boolToFloat(g.IsDangerWall(ActionStraight))
		b[1] = boolToFloat(g.IsDangerWall(ActionLeft))
		b[2] = boolToFloat(g.IsDangerWall(ActionRight))
	}
	return b
}

func (f *FeatureExtractor) dangers(g *Game, dst []float64) {
	dst[0] = boolToFloat(g.IsDanger(ActionStraight))
	dst[1] = boolToFloat(g.IsDanger(ActionLeft))
	dst[2] = boolToFloat(g.IsDanger(ActionRight))
}

func (f *FeatureExtractor) rays(g *Game, dst []float64) {
	dst[0] = g.BodyDistanceInDir(ActionStraight)
	dst[1] = g.BodyDistanceInDir(ActionLeft)
	dst[2] = g.BodyDistanceInDir(ActionRight)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
