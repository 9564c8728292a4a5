package engine

import (
	"fmt"
	"sort"
)

// Pos is a cell coordinate. Row grows downwards, Col grows to the right.
type Pos struct {
	Row, Col int
}

func (p Pos) Add(d Pos) Pos { return Pos{p.Row + d.Row, p.Col + d.Col} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.Row, p.Col) }

// Less orders positions by row, then column.
func (p Pos) Less(o Pos) bool {
	if p.Row != o.Row {
		return p.Row < o.Row
	}
	return p.Col < o.Col
}

// directions in the order the controller tries them: up, down, left, right.
var directions = [4]Pos{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

func sortPositions(ps []Pos) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}

type Survivor struct {
	ID       int
	Position Pos
	// Rescued is set once an agent picks the survivor up. The survivor stays
	// on the grid until it is delivered to an exit.
	Rescued bool
}

// Grid is the static map plus the survivors still present on it.
type Grid struct {
	Size      int
	Obstacles []Pos
	Exits     []Pos
	Survivors []*Survivor

	blocked []bool
	exit    []bool
}

// NewGrid builds a grid and checks that every entity is inside it and that
// no two entities share a cell. Survivor ids are assigned from 1 in the
// order given.
func NewGrid(size int, obstacles, exits, survivors []Pos) (*Grid, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: grid size %d", ErrInvalidParams, size)
	}
	g := &Grid{
		Size:      size,
		Obstacles: append([]Pos(nil), obstacles...),
		Exits:     append([]Pos(nil), exits...),
		blocked:   make([]bool, size*size),
		exit:      make([]bool, size*size),
	}
	sortPositions(g.Obstacles)
	sortPositions(g.Exits)

	seen := make(map[Pos]string, len(obstacles)+len(exits)+len(survivors))
	claim := func(p Pos, what string) error {
		if !g.InBounds(p) {
			return fmt.Errorf("%w: %s at %v is outside the %dx%d grid", ErrInvalidState, what, p, size, size)
		}
		if other, ok := seen[p]; ok {
			return fmt.Errorf("%w: %s at %v overlaps %s", ErrInvalidState, what, p, other)
		}
		seen[p] = what
		return nil
	}
	for _, p := range g.Obstacles {
		if err := claim(p, "obstacle"); err != nil {
			return nil, err
		}
		g.blocked[g.index(p)] = true
	}
	for _, p := range g.Exits {
		if err := claim(p, "exit"); err != nil {
			return nil, err
		}
		g.exit[g.index(p)] = true
	}
	for i, p := range survivors {
		if err := claim(p, "survivor"); err != nil {
			return nil, err
		}
		g.Survivors = append(g.Survivors, &Survivor{ID: i + 1, Position: p})
	}
	return g, nil
}

func (g *Grid) index(p Pos) int { return p.Row*g.Size + p.Col }

func (g *Grid) InBounds(p Pos) bool {
	return p.Row >= 0 && p.Row < g.Size && p.Col >= 0 && p.Col < g.Size
}

// Blocked reports whether p is outside the grid or holds an obstacle.
func (g *Grid) Blocked(p Pos) bool {
	return !g.InBounds(p) || g.blocked[g.index(p)]
}

func (g *Grid) IsExit(p Pos) bool {
	return g.InBounds(p) && g.exit[g.index(p)]
}

// SurvivorAt returns the survivor waiting at p, or nil. Survivors already
// picked up are not returned.
func (g *Grid) SurvivorAt(p Pos) *Survivor {
	for _, s := range g.Survivors {
		if !s.Rescued && s.Position == p {
			return s
		}
	}
	return nil
}

func (g *Grid) Survivor(id int) *Survivor {
	for _, s := range g.Survivors {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Pool returns the positions of survivors still waiting for an agent.
func (g *Grid) Pool() []Pos {
	pool := make([]Pos, 0, len(g.Survivors))
	for _, s := range g.Survivors {
		if !s.Rescued {
			pool = append(pool, s.Position)
		}
	}
	return pool
}

func (g *Grid) removeSurvivor(id int) {
	for i, s := range g.Survivors {
		if s.ID == id {
			g.Survivors = append(g.Survivors[:i], g.Survivors[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy. Obstacles and exits never change after
// construction, so their lookup tables are shared.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Survivors = make([]*Survivor, len(g.Survivors))
	for i, s := range g.Survivors {
		cp := *s
		c.Survivors[i] = &cp
	}
	return &c
}
