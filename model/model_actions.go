package model

import (
	"strconv"

	"github.com/zucenko/rescuegrid/engine"
)

func NewCoord(p engine.Pos) Coord {
	return Coord{p.Row, p.Col}
}

func coords(ps []engine.Pos) []Coord {
	out := make([]Coord, len(ps))
	for i, p := range ps {
		out[i] = NewCoord(p)
	}
	return out
}

func NewGridView(g *engine.Grid, agents []*engine.Agent) GridView {
	pool := g.Pool()
	survivors := make([]SurvivorView, len(pool))
	for i, p := range pool {
		survivors[i] = SurvivorView{Position: NewCoord(p)}
	}
	agentCoords := make([]Coord, len(agents))
	for i, a := range agents {
		agentCoords[i] = NewCoord(a.Position)
	}
	return GridView{
		Size:      g.Size,
		Obstacles: coords(g.Obstacles),
		Hazards:   coords(g.Obstacles),
		Survivors: survivors,
		Exits:     coords(g.Exits),
		Agents:    agentCoords,
	}
}

func NewAgentState(a *engine.Agent) AgentState {
	s := AgentState{
		ID:        a.ID,
		Position:  NewCoord(a.Position),
		Steps:     a.Steps,
		Carrying:  a.Carrying,
		Completed: a.Completed,
		Status:    a.Status().Name(),
		Stalled:   a.Stalled,
	}
	if a.Target != nil {
		t := NewCoord(*a.Target)
		s.CurrentTarget = &t
	}
	return s
}

func NewAgentStates(agents []*engine.Agent) []AgentState {
	out := make([]AgentState, len(agents))
	for i, a := range agents {
		out[i] = NewAgentState(a)
	}
	return out
}

func NewStateResponse(missionID string, v *engine.View) StateResponse {
	return StateResponse{
		MissionID:       missionID,
		Tick:            v.Tick,
		Grid:            NewGridView(v.Grid, v.Agents),
		AgentStates:     NewAgentStates(v.Agents),
		MissionComplete: v.Complete,
		TotalSteps:      v.TotalSteps(),
	}
}

// NewMissionReport fills the counters from r; identity fields are left to the caller.
func NewMissionReport(missionID string, seed int64, size, agents int, r engine.Report) MissionReport {
	stalled := r.Stalled
	if stalled == nil {
		stalled = []int{}
	}
	return MissionReport{
		MissionID:  missionID,
		Seed:       seed,
		Size:       size,
		Agents:     agents,
		Tick:       r.Tick,
		Survivors:  r.Survivors,
		Rescued:    r.Rescued,
		Delivered:  r.Delivered,
		Stranded:   coords(r.Stranded),
		Stalled:    stalled,
		Complete:   r.Complete,
		TotalSteps: r.TotalSteps,
	}
}

// SymbolMatrix renders the grid as rows of legacy symbols. Completed agents
// have left the field and are not drawn.
func SymbolMatrix(g *engine.Grid, agents []*engine.Agent) [][]string {
	m := make([][]string, g.Size)
	for r := range m {
		m[r] = make([]string, g.Size)
		for c := range m[r] {
			m[r][c] = SymbolEmpty
		}
	}
	for _, p := range g.Exits {
		m[p.Row][p.Col] = SymbolExit
	}
	for _, p := range g.Pool() {
		m[p.Row][p.Col] = SymbolSurvivor
	}
	for _, a := range agents {
		if !a.Completed {
			m[a.Position.Row][a.Position.Col] = SymbolAgent
		}
	}
	for _, p := range g.Obstacles {
		m[p.Row][p.Col] = SymbolObstacle
	}
	return m
}

// AgentPositions keys the positions of agents still in the field by id.
func AgentPositions(agents []*engine.Agent) map[string]Coord {
	out := make(map[string]Coord, len(agents))
	for _, a := range agents {
		if !a.Completed {
			out[strconv.Itoa(a.ID)] = NewCoord(a.Position)
		}
	}
	return out
}

func NewLegacySetupResponse(missionID string, v *engine.View) LegacySetupResponse {
	return LegacySetupResponse{
		MissionID:      missionID,
		Grid:           SymbolMatrix(v.Grid, v.Agents),
		AgentPositions: AgentPositions(v.Agents),
	}
}
