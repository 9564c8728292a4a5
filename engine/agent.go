package engine

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

type Status int

const (
	Searching Status = iota
	Carrying
	Completed
)

func (s Status) Name() string {
	switch s {
	case Searching:
		return "searching"
	case Carrying:
		return "carrying"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("n/a:%d", s)
	}
}

type Agent struct {
	ID        int
	Position  Pos
	Carrying  bool
	Completed bool
	Steps     int

	// Cargo is the id of the carried survivor, 0 when empty-handed.
	Cargo int
	// Delivered counts survivors this agent brought to an exit.
	Delivered int
	// Target is the cell the agent headed for on its last move.
	Target *Pos
	// Stalled is set when the last step found no path to any target.
	Stalled bool
}

func (a *Agent) Status() Status {
	switch {
	case a.Completed:
		return Completed
	case a.Carrying:
		return Carrying
	default:
		return Searching
	}
}

func (a *Agent) Clone() *Agent {
	c := *a
	if a.Target != nil {
		t := *a.Target
		c.Target = &t
	}
	return &c
}

// Controller advances agents one step at a time. A controller keeps a path
// cache bound to the grid it first sees, so it must not outlive one tick.
type Controller struct {
	grid  *Grid
	paths *pathCache
}

func NewController() *Controller {
	return &Controller{}
}

func (c *Controller) pathsBuilt() int {
	if c.paths == nil {
		return 0
	}
	return c.paths.builds
}

// Step advances a single agent on a fresh controller.
func Step(g *Grid, a *Agent) (*Agent, error) {
	return NewController().Step(g, a)
}

// Step returns the agent after one tick. The agent passed in is not
// modified; the grid is, when a survivor is picked up or delivered.
func (c *Controller) Step(g *Grid, a *Agent) (*Agent, error) {
	if err := checkAgent(g, a); err != nil {
		return nil, err
	}
	if c.grid != g {
		c.grid, c.paths = g, newPathCache(g)
	}

	next := a.Clone()
	switch next.Status() {
	case Completed:
		return next, nil
	case Carrying:
		next.Stalled = false
		c.carry(next)
	default:
		next.Stalled = false
		c.search(next)
	}
	return next, nil
}

func (c *Controller) search(a *Agent) {
	if s := c.grid.SurvivorAt(a.Position); s != nil {
		c.pickUp(a, s)
		return
	}
	target, ok := nearest(c.paths.from(a.Position), c.grid.Pool())
	if !ok {
		// nothing left to rescue from here: walk out
		c.leave(a)
		return
	}
	if !c.advance(a, target) {
		return
	}
	if s := c.grid.SurvivorAt(a.Position); s != nil {
		c.pickUp(a, s)
	}
}

func (c *Controller) carry(a *Agent) {
	if c.grid.IsExit(a.Position) {
		c.deliver(a)
		return
	}
	target, ok := nearest(c.paths.from(a.Position), c.grid.Exits)
	if !ok {
		c.stall(a)
		return
	}
	if c.advance(a, target) && c.grid.IsExit(a.Position) {
		c.deliver(a)
	}
}

func (c *Controller) leave(a *Agent) {
	if c.grid.IsExit(a.Position) {
		a.Completed = true
		a.Target = nil
		return
	}
	target, ok := nearest(c.paths.from(a.Position), c.grid.Exits)
	if !ok {
		c.stall(a)
		return
	}
	if c.advance(a, target) && c.grid.IsExit(a.Position) {
		a.Completed = true
		a.Target = nil
	}
}

func (c *Controller) advance(a *Agent, target Pos) bool {
	t := target
	a.Target = &t
	n, ok := nextStep(c.paths.from(target), a.Position)
	if !ok {
		c.stall(a)
		return false
	}
	a.Position = n
	a.Steps++
	return true
}

func (c *Controller) pickUp(a *Agent, s *Survivor) {
	s.Rescued = true
	a.Carrying = true
	a.Cargo = s.ID
	a.Target = nil
	log.WithFields(log.Fields{"agent": a.ID, "survivor": s.ID, "at": a.Position.String()}).Debug("survivor picked up")
}

func (c *Controller) deliver(a *Agent) {
	c.grid.removeSurvivor(a.Cargo)
	log.WithFields(log.Fields{"agent": a.ID, "survivor": a.Cargo, "at": a.Position.String()}).Debug("survivor delivered")
	a.Carrying = false
	a.Cargo = 0
	a.Delivered++
	a.Completed = true
	a.Target = nil
}

func (c *Controller) stall(a *Agent) {
	if !a.Stalled {
		log.WithFields(log.Fields{"agent": a.ID, "at": a.Position.String(), "status": a.Status().Name()}).Debug("no path, agent stalled")
	}
	a.Stalled = true
}

func checkAgent(g *Grid, a *Agent) error {
	switch {
	case g == nil:
		return fmt.Errorf("%w: nil grid", ErrInvalidState)
	case a == nil:
		return fmt.Errorf("%w: nil agent", ErrInvalidState)
	case a.ID < 1:
		return fmt.Errorf("%w: agent id %d", ErrInvalidState, a.ID)
	case !g.InBounds(a.Position):
		return fmt.Errorf("%w: agent %d at %v is outside the %dx%d grid", ErrInvalidState, a.ID, a.Position, g.Size, g.Size)
	case g.Blocked(a.Position):
		return fmt.Errorf("%w: agent %d stands on an obstacle at %v", ErrInvalidState, a.ID, a.Position)
	case a.Completed && a.Carrying:
		return fmt.Errorf("%w: agent %d is completed but still carrying", ErrInvalidState, a.ID)
	case a.Carrying != (a.Cargo != 0):
		return fmt.Errorf("%w: agent %d carrying=%v with cargo %d", ErrInvalidState, a.ID, a.Carrying, a.Cargo)
	}
	if a.Carrying {
		s := g.Survivor(a.Cargo)
		if s == nil || !s.Rescued {
			return fmt.Errorf("%w: agent %d carries survivor %d which the grid does not hold as rescued", ErrInvalidState, a.ID, a.Cargo)
		}
	}
	return nil
}
