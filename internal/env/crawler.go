package env

import (
	"errors"
	"fmt"
	"math"

	"evostrat/internal/config"
	"evostrat/internal/genotype"
	"evostrat/internal/randutil"
)

var errNoBody = errors.New("crawler needs a body")

type crawlerKind struct{}

func (crawlerKind) Name() string    { return "crawler" }
func (crawlerKind) NeedsBody() bool { return true }

// ObservationSize is one joint offset per possible node plus a sin/cos clock
func (crawlerKind) ObservationSize(cfg *config.Config) int {
	return 2*cfg.Body.MaxBreadth + 2
}

// ActionSize is one joint target per possible node; slots past a limb's
// breadth are ignored
func (crawlerKind) ActionSize(cfg *config.Config) int {
	return 2 * cfg.Body.MaxBreadth
}

func (crawlerKind) New(cfg *config.Config, body *genotype.Graphoid, _ uint32) (Environment, error) {
	return NewCrawler(body, cfg.Body.MaxBreadth, cfg.Env.MaxSteps, cfg.Env.Crawler)
}

type vec struct{ x, y float64 }

// Crawler is a planar kinematic walker built from a graphoid. Every non-root
// node is a joint whose angle is the genotype's rest angle plus an actuated
// offset. The lowest node below the torso is planted each step, so moving it
// backward pushes the torso forward.
type Crawler struct {
	body        *genotype.Graphoid
	left, right *genotype.Node
	maxBreadth  int
	maxSteps    int
	opts        config.CrawlerConfig

	offsets []float64
	step    int
	x       float64
	energy  float64
}

// NewCrawler realizes body. Limbs broader than maxBreadth cannot be driven
// by the fixed-size action vector and are rejected.
func NewCrawler(body *genotype.Graphoid, maxBreadth, maxSteps int, opts config.CrawlerConfig) (*Crawler, error) {
	if body == nil {
		return nil, errNoBody
	}
	if err := body.Validate(maxBreadth); err != nil {
		return nil, fmt.Errorf("crawler body: %w", err)
	}
	left, err := genotype.Decode(body.Left.Structure)
	if err != nil {
		return nil, err
	}
	right, err := genotype.Decode(body.Right.Structure)
	if err != nil {
		return nil, err
	}
	if opts.Period < 1 {
		opts.Period = 1
	}
	c := &Crawler{
		body:       body.Clone(),
		left:       left,
		right:      right,
		maxBreadth: maxBreadth,
		maxSteps:   maxSteps,
		opts:       opts,
		offsets:    make([]float64, 2*maxBreadth),
	}
	return c, nil
}

func (c *Crawler) Reset() {
	for i := range c.offsets {
		c.offsets[i] = 0
	}
	c.step = 0
	c.x = 0
	c.energy = 0
}

func (c *Crawler) Step(action []float64) {
	if c.Terminal() {
		return
	}
	before := c.joints()

	var effort float64
	for i, a := range action {
		effort += a * a
		if i < len(c.offsets) {
			c.offsets[i] = c.opts.MaxOffset * math.Tanh(a)
		}
	}
	c.energy += c.opts.EnergyCoef * effort

	after := c.joints()
	foot := -1
	for i, p := range after {
		if p.y < 0 && (foot < 0 || p.y < after[foot].y) {
			foot = i
		}
	}
	if foot >= 0 {
		c.x -= after[foot].x - before[foot].x
	}
	c.step++
}

func (c *Crawler) Terminal() bool { return c.step >= c.maxSteps }

// Reward is forward displacement less the accumulated actuation cost
func (c *Crawler) Reward() float64 { return c.x - c.energy }

func (c *Crawler) BaseReward() float64 { return c.x }
func (c *Crawler) EnergyCost() float64 { return c.energy }

func (c *Crawler) Observation() []float64 {
	obs := make([]float64, 0, len(c.offsets)+2)
	obs = append(obs, c.offsets...)
	phase := 2 * math.Pi * float64(c.step) / float64(c.opts.Period)
	return append(obs, math.Sin(phase), math.Cos(phase))
}

// SetBody swaps in new segment attributes for the same topology
func (c *Crawler) SetBody(body *genotype.Graphoid) error {
	if body.Signature() != c.body.Signature() {
		return fmt.Errorf("crawler set body %q over %q: topology changed", body.Signature(), c.body.Signature())
	}
	if err := body.Validate(c.maxBreadth); err != nil {
		return fmt.Errorf("crawler body: %w", err)
	}
	c.body = body.Clone()
	return nil
}

// Body returns the realized body plan
func (c *Crawler) Body() *genotype.Graphoid { return c.body }

// joints returns every non-root node position relative to the torso centre,
// left limb first, each limb in pre-order
func (c *Crawler) joints() []vec {
	out := make([]vec, 0, c.body.Nodes())
	half := c.body.TorsoLength / 2
	out = c.walkLimb(out, c.left, c.body.Left, -1, vec{-half, 0}, c.offsets[:c.maxBreadth])
	out = c.walkLimb(out, c.right, c.body.Right, 1, vec{half, 0}, c.offsets[c.maxBreadth:])
	return out
}

// walkLimb mirrors the left limb through side = -1. Limbs hang downward and
// outward from the torso ends.
func (c *Crawler) walkLimb(out []vec, root *genotype.Node, limb genotype.Limb, side float64, base vec, offsets []float64) []vec {
	idx := 0
	var walk func(n *genotype.Node, at vec, heading float64)
	walk = func(n *genotype.Node, at vec, heading float64) {
		for _, child := range n.Children {
			i := idx
			idx++
			h := heading + side*(limb.Angles[i]+offsets[i])
			p := vec{at.x + limb.Lengths[i]*math.Cos(h), at.y + limb.Lengths[i]*math.Sin(h)}
			out = append(out, p)
			walk(child, p, h)
		}
	}
	walk(root, base, -math.Pi/2+side*math.Pi/4)
	return out
}

// Lowest returns the height of the lowest joint, used by replays
func (c *Crawler) Lowest() float64 {
	js := c.joints()
	ys := make([]float64, len(js))
	for i, p := range js {
		ys[i] = -p.y
	}
	if i := randutil.Argmax(ys); i >= 0 {
		return js[i].y
	}
	return 0
}
