package env

import (
	"math/rand"
)

// Direction represents the snake's heading
type Direction int

const (
	DirUp Direction = iota
	DirRight
	DirDown
	DirLeft
)

// Action represents a relative turn
type Action int

const (
	ActionStraight Action = iota
	ActionLeft
	ActionRight
)

// Point represents a coordinate on the grid
type Point struct {
	X, Y int
}

func (p Point) step(dir Direction, n int) Point {
	switch dir {
	case DirUp:
		return Point{X: p.X, Y: p.Y - n}
	case DirRight:
		return Point{X: p.X + n, Y: p.Y}
	case DirDown:
		return Point{X: p.X, Y: p.Y + n}
	case DirLeft:
		return Point{X: p.X - n, Y: p.Y}
	}
	return p
}

// Game is the grid snake simulation behind the snake environment
type Game struct {
	Width        int
	Height       int
	TickCap      int
	StallWindow  int
	FruitEnabled bool

	Snake         []Point // head at index 0
	Dir           Direction
	Fruit         Point
	Tick          int
	TicksNoFruit  int
	FruitsEaten   int
	Alive         bool
	DeathReason   DeathReason
	ProgressSum   float64
	LastFruitDist float64

	seed uint32
	rng  *rand.Rand
}

// NewGame creates a game and resets it to the starting state
func NewGame(width, height, startLength, tickCap, stallWindow int, fruitEnabled bool, seed uint32) *Game {
	g := &Game{
		Width:        width,
		Height:       height,
		TickCap:      tickCap,
		StallWindow:  stallWindow,
		FruitEnabled: fruitEnabled,
		seed:         seed,
	}
	g.Reset(startLength)
	return g
}

// Reset restarts the episode. Fruit placement replays the same sequence on
// every reset so repeated episodes of one policy are identical.
func (g *Game) Reset(startLength int) {
	if startLength < 1 {
		startLength = 1
	}
	g.rng = rand.New(rand.NewSource(int64(g.seed)))
	g.Tick = 0
	g.TicksNoFruit = 0
	g.FruitsEaten = 0
	g.Alive = true
	g.DeathReason = DeathNone
	g.ProgressSum = 0
	g.LastFruitDist = 0

	// centre, facing right
	cx, cy := g.Width/2, g.Height/2
	g.Dir = DirRight
	g.Snake = make([]Point, startLength)
	for i := range g.Snake {
		g.Snake[i] = Point{X: cx - i, Y: cy}
	}

	if g.FruitEnabled {
		g.spawnFruit()
		g.LastFruitDist = g.distanceToFruit()
	}
}

// Step advances the game by one tick
func (g *Game) Step(action Action) {
	if !g.Alive {
		return
	}
	g.Tick++
	g.TicksNoFruit++

	g.Dir = g.turn(action)
	next := g.Snake[0].step(g.Dir, 1)

	if !g.inBounds(next) {
		g.die(DeathWall)
		return
	}
	if g.hitsBody(next) {
		g.die(DeathSelf)
		return
	}

	if g.FruitEnabled && next == g.Fruit {
		g.Snake = append([]Point{next}, g.Snake...)
		g.FruitsEaten++
		g.TicksNoFruit = 0
		g.spawnFruit()
		g.LastFruitDist = g.distanceToFruit()
	} else {
		g.Snake = append([]Point{next}, g.Snake[:len(g.Snake)-1]...)
		if g.FruitEnabled {
			d := g.distanceToFruit()
			if gain := g.LastFruitDist - d; gain > 0 {
				g.ProgressSum += gain
			}
			g.LastFruitDist = d
		}
	}

	switch {
	case g.TicksNoFruit >= g.StallWindow:
		g.die(DeathStall)
	case g.Tick >= g.TickCap:
		g.die(DeathTimeout)
	}
}

func (g *Game) die(reason DeathReason) {
	g.Alive = false
	g.DeathReason = reason
}

func (g *Game) turn(action Action) Direction {
	switch action {
	case ActionLeft:
		return (g.Dir + 3) % 4
	case ActionRight:
		return (g.Dir + 1) % 4
	default:
		return g.Dir
	}
}

func (g *Game) inBounds(p Point) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

// hitsBody ignores the tail, which moves away on the same tick
func (g *Game) hitsBody(p Point) bool {
	for i := 0; i < len(g.Snake)-1; i++ {
		if g.Snake[i] == p {
			return true
		}
	}
	return false
}

func (g *Game) spawnFruit() {
	occupied := make(map[Point]bool, len(g.Snake))
	for _, p := range g.Snake {
		occupied[p] = true
	}
	var empty []Point
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if p := (Point{X: x, Y: y}); !occupied[p] {
				empty = append(empty, p)
			}
		}
	}
	if len(empty) > 0 {
		g.Fruit = empty[g.rng.Intn(len(empty))]
	}
}

// distanceToFruit is the Manhattan distance from the head
func (g *Game) distanceToFruit() float64 {
	return float64(abs(g.Snake[0].X-g.Fruit.X) + abs(g.Snake[0].Y-g.Fruit.Y))
}

// Head returns the snake's head position
func (g *Game) Head() Point {
	return g.Snake[0]
}

// Tail returns the snake's tail position
func (g *Game) Tail() Point {
	return g.Snake[len(g.Snake)-1]
}

// Stats returns the episode statistics so far
func (g *Game) Stats() EpisodeStats {
	return EpisodeStats{
		Fruits:      g.FruitsEaten,
		Ticks:       g.Tick,
		ProgressSum: g.ProgressSum,
		Death:       g.DeathReason,
		Seed:        g.seed,
	}
}

// IsDangerWall reports whether the turn would run into a wall
func (g *Game) IsDangerWall(a Action) bool {
	return !g.inBounds(g.Snake[0].step(g.turn(a), 1))
}

// IsDangerBody reports whether the turn would run into the body
func (g *Game) IsDangerBody(a Action) bool {
	return g.hitsBody(g.Snake[0].step(g.turn(a), 1))
}

// IsDanger reports any collision for the turn
func (g *Game) IsDanger(a Action) bool {
	return g.IsDangerWall(a) || g.IsDangerBody(a)
}

// BodyDistanceInDir casts a ray and returns the normalized distance to the
// body, or 1 when the ray leaves the grid first
func (g *Game) BodyDistanceInDir(a Action) float64 {
	dir := g.turn(a)
	span := g.Width + g.Height
	for d := 1; d < span; d++ {
		p := g.Snake[0].step(dir, d)
		if !g.inBounds(p) {
			return 1
		}
		for _, s := range g.Snake {
			if s == p {
				return float64(d) / float64(span)
			}
		}
	}
	return 1
}

// FruitDirection returns the fruit offset in the heading frame: x to the
// right, y forward, both scaled by the grid span
func (g *Game) FruitDirection() (float64, float64) {
	if !g.FruitEnabled {
		return 0, 0
	}
	span := float64(g.Width + g.Height)
	dx := float64(g.Fruit.X-g.Snake[0].X) / span
	dy := float64(g.Fruit.Y-g.Snake[0].Y) / span

	switch g.Dir {
	case DirUp:
		return dx, -dy
	case DirRight:
		return -dy, dx
	case DirDown:
		return -dx, dy
	case DirLeft:
		return dy, -dx
	}
	return dx, dy
}

// FruitDistanceNorm returns the fruit distance scaled by the grid span
func (g *Game) FruitDistanceNorm() float64 {
	if !g.FruitEnabled {
		return 1
	}
	return g.distanceToFruit() / float64(g.Width+g.Height)
}

// LengthNorm returns the snake length over the grid area
func (g *Game) LengthNorm() float64 {
	return float64(len(g.Snake)) / float64(g.Width*g.Height)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
