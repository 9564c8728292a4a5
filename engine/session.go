package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/zucenko/rescuegrid/engine")

// View is a copy of the session state safe to hand out.
type View struct {
	Tick     int
	Grid     *Grid
	Agents   []*Agent
	Complete bool
}

// TotalSteps sums the steps of every agent.
func (v *View) TotalSteps() int {
	total := 0
	for _, a := range v.Agents {
		total += a.Steps
	}
	return total
}

func (v *View) Agent(id int) *Agent {
	for _, a := range v.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Report summarises a mission. Stranded lists survivors still waiting for an
// agent; once Complete is set they are left behind for good, and Delivered
// plus len(Stranded) equals Survivors.
type Report struct {
	Tick       int
	Survivors  int
	Rescued    int
	Delivered  int
	Stranded   []Pos
	Stalled    []int
	Complete   bool
	TotalSteps int
}

// Session holds the one active grid and its agents. Every operation holds
// the session lock for its whole duration.
type Session struct {
	mu        sync.Mutex
	grid      *Grid
	agents    []*Agent
	tick      int
	survivors int
	completed bool
}

func NewSession() *Session {
	return &Session{}
}

// Reset replaces the held state. Agents are kept in id order; ids must be
// unique and agents must stand on open cells. Agents that have not moved yet
// must start on distinct cells clear of exits and waiting survivors.
func (s *Session) Reset(g *Grid, agents []*Agent) error {
	if g == nil {
		return fmt.Errorf("%w: nil grid", ErrInvalidState)
	}
	if len(agents) == 0 {
		return fmt.Errorf("%w: no agents", ErrInvalidState)
	}
	held := make([]*Agent, len(agents))
	ids := make(map[int]bool, len(agents))
	for i, a := range agents {
		if err := checkAgent(g, a); err != nil {
			return err
		}
		if ids[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %d", ErrInvalidState, a.ID)
		}
		ids[a.ID] = true
		held[i] = a.Clone()
	}
	if err := checkStarts(g, held); err != nil {
		return err
	}
	sort.Slice(held, func(i, j int) bool { return held[i].ID < held[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = g.Clone()
	s.agents = held
	s.tick = 0
	s.survivors = len(g.Survivors)
	for _, a := range held {
		// delivered survivors are gone from the grid
		s.survivors += a.Delivered
	}
	s.completed = allCompleted(held)
	return nil
}

// Tick steps every agent once, in id order. Nothing is committed when any
// step fails.
func (s *Session) Tick(ctx context.Context) (*View, error) {
	_, span := tracer.Start(ctx, "session.tick")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance(span, func(*Agent) bool { return true })
}

// TickAgent steps only the agent with the given id.
func (s *Session) TickAgent(ctx context.Context, id int) (*View, error) {
	_, span := tracer.Start(ctx, "session.tick_agent", trace.WithAttributes(attribute.Int("agent.id", id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid != nil && s.find(id) == nil {
		err := fmt.Errorf("%w: no agent with id %d", ErrInvalidState, id)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s.advance(span, func(a *Agent) bool { return a.ID == id })
}

func (s *Session) advance(span trace.Span, selected func(*Agent) bool) (*View, error) {
	if s.grid == nil {
		span.SetStatus(codes.Error, ErrNoActiveSession.Error())
		return nil, ErrNoActiveSession
	}

	grid := s.grid.Clone()
	ctrl := NewController()
	agents := make([]*Agent, len(s.agents))
	for i, a := range s.agents {
		if !selected(a) {
			agents[i] = a.Clone()
			continue
		}
		next, err := ctrl.Step(grid, a)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("tick %d, agent %d: %w", s.tick+1, a.ID, err)
		}
		agents[i] = next
	}

	complete := allCompleted(agents)
	if complete && !s.completed {
		if err := s.checkFinished(grid, agents); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	finished := complete && !s.completed
	s.grid, s.agents = grid, agents
	s.tick++
	s.completed = complete
	span.SetAttributes(
		attribute.Int("tick", s.tick),
		attribute.Int("paths.built", ctrl.pathsBuilt()),
		attribute.Bool("complete", complete),
	)
	if finished {
		r := s.report()
		fields := log.Fields{"tick": s.tick, "delivered": r.Delivered, "survivors": r.Survivors, "total_steps": r.TotalSteps}
		if len(r.Stranded) > 0 {
			log.WithFields(fields).WithField("stranded", len(r.Stranded)).Warn("mission complete with survivors left behind")
		} else {
			log.WithFields(fields).Info("mission complete")
		}
	}
	return s.view(), nil
}

// checkFinished enforces the completion invariant: every survivor is either
// delivered or still waiting on the grid.
func (s *Session) checkFinished(grid *Grid, agents []*Agent) error {
	delivered := 0
	for _, a := range agents {
		delivered += a.Delivered
	}
	waiting := len(grid.Pool())
	if delivered+waiting != s.survivors || waiting != len(grid.Survivors) {
		return fmt.Errorf("%w: mission finished with %d delivered and %d waiting out of %d survivors (%d on grid)",
			ErrInvalidState, delivered, waiting, s.survivors, len(grid.Survivors))
	}
	return nil
}

func (s *Session) Snapshot() (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		return nil, ErrNoActiveSession
	}
	return s.view(), nil
}

func (s *Session) Report() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		return Report{}, ErrNoActiveSession
	}
	return s.report(), nil
}

func (s *Session) report() Report {
	r := Report{
		Tick:      s.tick,
		Survivors: s.survivors,
		Stranded:  s.grid.Pool(),
		Complete:  s.completed,
	}
	for _, a := range s.agents {
		r.Delivered += a.Delivered
		r.TotalSteps += a.Steps
		if a.Stalled {
			r.Stalled = append(r.Stalled, a.ID)
		}
	}
	r.Rescued = r.Survivors - len(r.Stranded)
	return r
}

func (s *Session) view() *View {
	v := &View{
		Tick:     s.tick,
		Grid:     s.grid.Clone(),
		Agents:   make([]*Agent, len(s.agents)),
		Complete: s.completed,
	}
	for i, a := range s.agents {
		v.Agents[i] = a.Clone()
	}
	return v
}

func (s *Session) find(id int) *Agent {
	for _, a := range s.agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func allCompleted(agents []*Agent) bool {
	for _, a := range agents {
		if !a.Completed {
			return false
		}
	}
	return true
}

func checkStarts(g *Grid, agents []*Agent) error {
	taken := make(map[Pos]string, len(g.Exits)+len(g.Survivors)+len(agents))
	for _, p := range g.Exits {
		taken[p] = "an exit"
	}
	for _, p := range g.Pool() {
		taken[p] = "a survivor"
	}
	for _, a := range agents {
		if a.Steps > 0 || a.Delivered > 0 || a.Carrying || a.Completed {
			continue
		}
		if what, ok := taken[a.Position]; ok {
			return fmt.Errorf("%w: agent %d starts on %s at %v", ErrInvalidState, a.ID, what, a.Position)
		}
		taken[a.Position] = fmt.Sprintf("agent %d", a.ID)
	}
	return nil
}
