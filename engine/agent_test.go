package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLayout(t *testing.T, rows ...string) (*Grid, []*Agent) {
	t.Helper()
	g, agents, err := ParseLayout(strings.NewReader(strings.Join(rows, "\n")))
	require.NoError(t, err)
	return g, agents
}

func TestStep_SingleAgentScenario(t *testing.T) {
	g, agents := mustLayout(t,
		"A.S..",
		".....",
		".....",
		".....",
		"....E",
	)
	a := agents[0]
	var err error

	for i := 0; i < 2; i++ {
		a, err = Step(g, a)
		require.NoError(t, err)
	}
	assert.Equal(t, Pos{0, 2}, a.Position)
	assert.Equal(t, Carrying, a.Status())
	assert.Equal(t, 2, a.Steps)
	assert.Empty(t, g.Pool(), "picked up survivor must leave the pool in the same tick")

	for i := 0; i < 20 && !a.Completed; i++ {
		a, err = Step(g, a)
		require.NoError(t, err)
	}
	assert.Equal(t, Pos{4, 4}, a.Position)
	assert.Equal(t, Completed, a.Status())
	assert.Equal(t, 8, a.Steps)
	assert.Equal(t, 1, a.Delivered)
	assert.Empty(t, g.Survivors, "delivered survivor is removed from the grid")
}

func TestStep_NearestTargetTieBreak(t *testing.T) {
	g, agents := mustLayout(t,
		"E.S..",
		".....",
		"S.A.S",
		".....",
		"..S..",
	)
	a, err := Step(g, agents[0])
	require.NoError(t, err)

	require.NotNil(t, a.Target)
	assert.Equal(t, Pos{0, 2}, *a.Target, "equidistant survivors resolve to lowest row, then column")
	assert.Equal(t, Pos{1, 2}, a.Position)
}

func TestStep_NeighbourOrder(t *testing.T) {
	g, agents := mustLayout(t,
		"A..",
		".S.",
		"..E",
	)
	a, err := Step(g, agents[0])
	require.NoError(t, err)
	// both (0,1) and (1,0) are on a shortest path; down is tried before right
	assert.Equal(t, Pos{1, 0}, a.Position)
}

func TestStep_CompletedIsNoop(t *testing.T) {
	g, agents := mustLayout(t,
		"A.E",
		"...",
		"..S",
	)
	done := agents[0].Clone()
	done.Completed = true
	done.Steps = 5

	a, err := Step(g, done)
	require.NoError(t, err)
	assert.Equal(t, done, a)
	assert.Len(t, g.Pool(), 1)
}

func TestStep_BoxedInAgentStalls(t *testing.T) {
	g, agents := mustLayout(t,
		"AO.",
		"O.S",
		"..E",
	)
	a := agents[0]
	var err error
	for i := 0; i < 3; i++ {
		a, err = Step(g, a)
		require.NoError(t, err)
	}
	assert.Equal(t, Pos{0, 0}, a.Position)
	assert.Equal(t, 0, a.Steps)
	assert.Equal(t, Searching, a.Status())
	assert.True(t, a.Stalled)
}

func TestStep_PickUpInPlace(t *testing.T) {
	g, err := NewGrid(3, nil, []Pos{{2, 2}}, []Pos{{0, 0}})
	require.NoError(t, err)

	a, err := Step(g, &Agent{ID: 1, Position: Pos{0, 0}})
	require.NoError(t, err)
	assert.True(t, a.Carrying)
	assert.Equal(t, 1, a.Cargo)
	assert.Equal(t, 0, a.Steps)
	assert.True(t, g.Survivor(1).Rescued)
	assert.Empty(t, g.Pool())
}

func TestStep_UnreachableSurvivorAgentWalksOut(t *testing.T) {
	g, agents := mustLayout(t,
		"A...E",
		".....",
		".....",
		"...OO",
		"...OS",
	)
	a := agents[0]
	var err error
	for i := 0; i < 10 && !a.Completed; i++ {
		a, err = Step(g, a)
		require.NoError(t, err)
	}
	assert.True(t, a.Completed)
	assert.Equal(t, Pos{0, 4}, a.Position)
	assert.Equal(t, 4, a.Steps)
	assert.Equal(t, 0, a.Delivered)
	assert.Len(t, g.Pool(), 1)
}

func TestStep_InvalidState(t *testing.T) {
	g, agents := mustLayout(t,
		"AO.",
		"...",
		"S.E",
	)

	tests := []struct {
		name  string
		agent *Agent
	}{
		{"outside grid", &Agent{ID: 1, Position: Pos{5, 5}}},
		{"negative position", &Agent{ID: 1, Position: Pos{-1, 0}}},
		{"on obstacle", &Agent{ID: 1, Position: Pos{0, 1}}},
		{"zero id", &Agent{ID: 0, Position: Pos{0, 0}}},
		{"unknown cargo", &Agent{ID: 1, Position: Pos{0, 0}, Carrying: true, Cargo: 7}},
		{"cargo not picked up", &Agent{ID: 1, Position: Pos{0, 0}, Carrying: true, Cargo: 1}},
		{"cargo without carrying", &Agent{ID: 1, Position: Pos{0, 0}, Cargo: 1}},
		{"completed while carrying", &Agent{ID: 1, Position: Pos{0, 0}, Carrying: true, Completed: true, Cargo: 1}},
		{"nil agent", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Step(g, tc.agent)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}

	_, err := Step(nil, agents[0])
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStatus_Name(t *testing.T) {
	assert.Equal(t, "searching", Searching.Name())
	assert.Equal(t, "carrying", Carrying.Name())
	assert.Equal(t, "completed", Completed.Name())
	assert.Equal(t, "n/a:9", Status(9).Name())
}

func TestController_ReusesPathsWithinTick(t *testing.T) {
	g, agents := mustLayout(t,
		"A...A",
		".....",
		"..S..",
		".....",
		"E...E",
	)
	ctrl := NewController()
	for _, a := range agents {
		_, err := ctrl.Step(g, a)
		require.NoError(t, err)
	}
	// agent 1 builds its own field and the survivor's; agent 2 only its own
	assert.Equal(t, 3, ctrl.pathsBuilt())
}
