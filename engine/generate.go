package engine

import (
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultSize and DefaultExits match the layout the rescue UI was built against.
	DefaultSize  = 12
	DefaultExits = 2

	// drawsPerCell bounds rejection sampling: a layout gets drawsPerCell*size²
	// random draws before falling back to an explicit free-cell pick.
	drawsPerCell = 4
	// maxLayouts bounds how many layouts are tried before giving up on reachability.
	maxLayouts = 32
)

type Params struct {
	Size      int
	Agents    int
	Survivors int
	Obstacles int
	Exits     int
	// MinFree is the number of cells that must stay empty.
	MinFree int
}

// Occupied is the number of cells the requested entities need.
func (p Params) Occupied() int {
	return p.Agents + p.Survivors + p.Obstacles + p.Exits
}

func (p Params) Validate() error {
	switch {
	case p.Size < 1:
		return fmt.Errorf("%w: size must be at least 1, got %d", ErrInvalidParams, p.Size)
	case p.Agents < 1:
		return fmt.Errorf("%w: need at least one agent, got %d", ErrInvalidParams, p.Agents)
	case p.Survivors < 1:
		return fmt.Errorf("%w: need at least one survivor, got %d", ErrInvalidParams, p.Survivors)
	case p.Obstacles < 0:
		return fmt.Errorf("%w: obstacles cannot be negative, got %d", ErrInvalidParams, p.Obstacles)
	case p.Exits < 1:
		return fmt.Errorf("%w: need at least one exit, got %d", ErrInvalidParams, p.Exits)
	case p.MinFree < 0:
		return fmt.Errorf("%w: min free cells cannot be negative, got %d", ErrInvalidParams, p.MinFree)
	}
	if cells := p.Size * p.Size; p.Occupied()+p.MinFree > cells {
		return fmt.Errorf("%w: %d entities and %d free cells requested on a %dx%d grid of %d cells",
			ErrCapacity, p.Occupied(), p.MinFree, p.Size, p.Size, cells)
	}
	return nil
}

// ResolveSeed turns the zero seed into a clock-derived one.
func ResolveSeed(seed int64) int64 {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return seed
}

func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(ResolveSeed(seed)))
}

// Generate lays out a fresh grid and its agents. It fails with ErrCapacity
// when the entities do not fit, or when no layout within maxLayouts leaves
// every survivor reachable from an exit and an agent start, and every agent
// able to reach an exit.
func Generate(rng *rand.Rand, p Params) (*Grid, []*Agent, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	for attempt := 1; attempt <= maxLayouts; attempt++ {
		g, agents, err := layout(rng, p)
		if err != nil {
			return nil, nil, err
		}
		if reachable(g, agents) {
			log.WithFields(log.Fields{
				"size": p.Size, "agents": p.Agents, "survivors": p.Survivors,
				"obstacles": p.Obstacles, "exits": p.Exits, "attempt": attempt,
			}).Debug("grid generated")
			return g, agents, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no layout with every survivor reachable after %d attempts", ErrCapacity, maxLayouts)
}

func layout(rng *rand.Rand, p Params) (*Grid, []*Agent, error) {
	pl := newPlacer(rng, p.Size)
	obstacles := pl.takeN(p.Obstacles)
	exits := pl.takeN(p.Exits)
	survivors := pl.takeN(p.Survivors)
	starts := pl.takeN(p.Agents)

	g, err := NewGrid(p.Size, obstacles, exits, survivors)
	if err != nil {
		return nil, nil, err
	}
	agents := make([]*Agent, len(starts))
	for i, s := range starts {
		agents[i] = &Agent{ID: i + 1, Position: s}
	}
	return g, agents, nil
}

// reachable reports whether every survivor shares a connected region with
// at least one exit and at least one agent start, and whether every agent
// start can reach some exit.
func reachable(g *Grid, agents []*Agent) bool {
	label := components(g)
	exitIn := make(map[int]bool)
	for _, e := range g.Exits {
		exitIn[label[g.index(e)]] = true
	}
	agentIn := make(map[int]bool)
	for _, a := range agents {
		l := label[g.index(a.Position)]
		if !exitIn[l] {
			return false
		}
		agentIn[l] = true
	}
	for _, s := range g.Survivors {
		l := label[g.index(s.Position)]
		if !exitIn[l] || !agentIn[l] {
			return false
		}
	}
	return true
}

// placer draws distinct cells uniformly at random.
type placer struct {
	rng      *rand.Rand
	size     int
	occupied []bool
	free     int
	budget   int
}

func newPlacer(rng *rand.Rand, size int) *placer {
	cells := size * size
	return &placer{
		rng:      rng,
		size:     size,
		occupied: make([]bool, cells),
		free:     cells,
		budget:   drawsPerCell * cells,
	}
}

func (pl *placer) takeN(n int) []Pos {
	out := make([]Pos, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, pl.take())
	}
	return out
}

// take assumes at least one free cell remains; Params.Validate guarantees it.
func (pl *placer) take() Pos {
	idx := -1
	for pl.budget > 0 {
		pl.budget--
		i := pl.rng.Intn(len(pl.occupied))
		if !pl.occupied[i] {
			idx = i
			break
		}
	}
	if idx < 0 {
		// out of draws: pick the k-th free cell directly
		k := pl.rng.Intn(pl.free)
		for i, taken := range pl.occupied {
			if taken {
				continue
			}
			if k == 0 {
				idx = i
				break
			}
			k--
		}
	}
	pl.occupied[idx] = true
	pl.free--
	return Pos{Row: idx / pl.size, Col: idx % pl.size}
}
