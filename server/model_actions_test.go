package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/matryer/way"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zucenko/rescuegrid/config"
	"github.com/zucenko/rescuegrid/model"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*RescueServer, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateLimitRPM = 0
	if mutate != nil {
		mutate(cfg)
	}
	rs, err := NewRescueServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go rs.Hub.Loop(ctx)

	router := way.NewRouter()
	router.HandleFunc("POST", "/generate_grid", rs.Limiter.Limit(rs.HandleGenerate()))
	router.HandleFunc("POST", "/setup", rs.Limiter.Limit(rs.HandleSetup()))
	router.HandleFunc("POST", "/move", rs.Limiter.Limit(rs.HandleMove()))
	router.HandleFunc("GET", "/state", rs.HandleState())
	router.HandleFunc("GET", "/missions/:id", rs.HandleMission())
	router.HandleFunc("GET", "/watch", rs.Hub.HandleWatch())
	ts := httptest.NewServer(CORS([]string{"http://ui.test"}, RequestLog(router)))

	t.Cleanup(func() {
		cancel()
		ts.Close()
		rs.Close()
	})
	return rs, ts
}

func call(t *testing.T, ts *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestMove_BeforeGenerate(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var e model.ErrorResponse
	assert.Equal(t, http.StatusConflict, call(t, ts, "POST", "/move", "", &e))
	assert.Contains(t, e.Error, "no active session")

	assert.Equal(t, http.StatusConflict, call(t, ts, "GET", "/state", "", &e))
}

func TestGenerate_ResponseShape(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var resp model.GenerateResponse
	status := call(t, ts, "POST", "/generate_grid",
		`{"num_agents": 2, "num_survivors": 3, "num_obstacles": 5, "seed": 42}`, &resp)
	require.Equal(t, http.StatusOK, status)

	_, err := uuid.Parse(resp.MissionID)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), resp.Seed)
	assert.Equal(t, 12, resp.Grid.Size)
	assert.Len(t, resp.Grid.Obstacles, 5)
	assert.Equal(t, resp.Grid.Obstacles, resp.Grid.Hazards)
	assert.Len(t, resp.Grid.Survivors, 3)
	assert.Len(t, resp.Grid.Exits, 2)
	require.Len(t, resp.AgentStates, 2)
	for i, a := range resp.AgentStates {
		assert.Equal(t, i+1, a.ID)
		assert.Equal(t, resp.Grid.Agents[i], a.Position)
		assert.Zero(t, a.Steps)
		assert.False(t, a.Carrying)
		assert.False(t, a.Completed)
		assert.Equal(t, "searching", a.Status)
	}
}

func TestGenerate_SameSeedSameGrid(t *testing.T) {
	_, ts := newTestServer(t, nil)
	body := `{"num_agents": 3, "num_survivors": 4, "num_obstacles": 12, "seed": 9}`

	var first, second model.GenerateResponse
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/generate_grid", body, &first))
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/generate_grid", body, &second))
	assert.NotEqual(t, first.MissionID, second.MissionID)
	assert.Equal(t, first.Grid, second.Grid)
}

func TestGenerate_FailureKeepsActiveMission(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var ok model.GenerateResponse
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/generate_grid",
		`{"num_agents": 1, "num_survivors": 1, "num_obstacles": 0, "seed": 1}`, &ok))

	var e model.ErrorResponse
	status := call(t, ts, "POST", "/generate_grid",
		`{"num_agents": 2, "num_survivors": 2, "num_obstacles": 0, "size": 2}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, e.Error, "capacity")

	var state model.StateResponse
	require.Equal(t, http.StatusOK, call(t, ts, "GET", "/state", "", &state))
	assert.Equal(t, ok.MissionID, state.MissionID)
	assert.Equal(t, ok.Grid, state.Grid)
	assert.Zero(t, state.Tick)
}

func TestGenerate_BadRequests(t *testing.T) {
	_, ts := newTestServer(t, nil)
	tests := map[string]string{
		"not json":        `not json`,
		"empty body":      ``,
		"no agents":       `{"num_agents": 0, "num_survivors": 1, "num_obstacles": 0}`,
		"negative size":   `{"num_agents": 1, "num_survivors": 1, "num_obstacles": 0, "size": -3}`,
		"size over limit": `{"num_agents": 1, "num_survivors": 1, "num_obstacles": 0, "size": 1000}`,
		"wrong type":      `{"num_agents": "many"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			var e model.ErrorResponse
			assert.Equal(t, http.StatusBadRequest, call(t, ts, "POST", "/generate_grid", body, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestMove_AllAgentsUntilComplete(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var gen model.GenerateResponse
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/generate_grid",
		`{"num_agents": 3, "num_survivors": 3, "num_obstacles": 0, "seed": 5}`, &gen))

	var st model.StateResponse
	for i := 1; i <= 200 && !st.MissionComplete; i++ {
		require.Equal(t, http.StatusOK, call(t, ts, "POST", "/move", "", &st))
		assert.Equal(t, i, st.Tick)
		assert.Equal(t, gen.MissionID, st.MissionID)
	}
	require.True(t, st.MissionComplete)
	total := 0
	for _, a := range st.AgentStates {
		assert.True(t, a.Completed)
		total += a.Steps
	}
	assert.Equal(t, total, st.TotalSteps)
	assert.Empty(t, st.Grid.Survivors)

	var report model.MissionReport
	require.Equal(t, http.StatusOK, call(t, ts, "GET", "/missions/"+gen.MissionID, "", &report))
	assert.True(t, report.Complete)
	assert.Equal(t, 3, report.Survivors)
	assert.Equal(t, 3, report.Delivered)
	assert.Empty(t, report.Stranded)
	assert.Equal(t, st.Tick, report.Tick)
	assert.Equal(t, int64(5), report.Seed)
}

func TestMove_SingleAgent(t *testing.T) {
	_, ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/generate_grid",
		`{"num_agents": 2, "num_survivors": 2, "num_obstacles": 0, "seed": 3}`, nil))

	var resp model.AgentMoveResponse
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/move", `{"agent_id": "2"}`, &resp))
	assert.Equal(t, 1, resp.Tick)
	require.Len(t, resp.AgentStates, 2)
	assert.Zero(t, resp.AgentStates[0].Steps, "other agents stay put")
	assert.Equal(t, resp.AgentStates[1].Position, resp.Position)
	assert.Equal(t, resp.AgentStates[1].Steps, resp.TotalTime)
	assert.False(t, resp.Completed)

	var e model.ErrorResponse
	assert.Equal(t, http.StatusConflict, call(t, ts, "POST", "/move", `{"agent_id": 9}`, &e))
	assert.Equal(t, http.StatusBadRequest, call(t, ts, "POST", "/move", `{"agent_id": "x"}`, &e))
}

func TestSetup_LegacyFlow(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var setup model.LegacySetupResponse
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/setup",
		`{"num_agents": 1, "num_survivors": 1, "num_obstacles": 5}`, &setup))
	require.Len(t, setup.Grid, 12)
	for _, row := range setup.Grid {
		assert.Len(t, row, 12)
	}
	require.Contains(t, setup.AgentPositions, "1")
	pos := setup.AgentPositions["1"]
	assert.Equal(t, model.SymbolAgent, setup.Grid[pos[0]][pos[1]])

	var resp model.LegacyMoveResponse
	completed := false
	for i := 0; i < 200 && !completed; i++ {
		// decoding into a used struct would merge agent_positions
		resp = model.LegacyMoveResponse{}
		require.Equal(t, http.StatusOK, call(t, ts, "POST", "/move", `{"agent_id": "1"}`, &resp))
		completed = resp.Completed
	}
	require.NotNil(t, resp.AgentPositions)
	require.True(t, completed)
	assert.Positive(t, resp.TotalTime)
	assert.NotContains(t, resp.AgentPositions, "1", "completed agents leave the field")
}

func TestMission_NotFound(t *testing.T) {
	_, ts := newTestServer(t, nil)
	var e model.ErrorResponse
	assert.Equal(t, http.StatusNotFound, call(t, ts, "GET", "/missions/nope", "", &e))
	assert.Contains(t, e.Error, "nope")
}

func TestRateLimit(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.Server.RateLimitRPM = 1
		c.Server.RateLimitBurst = 2
	})
	assert.Equal(t, http.StatusConflict, call(t, ts, "POST", "/move", "", nil))
	assert.Equal(t, http.StatusConflict, call(t, ts, "POST", "/move", "", nil))

	var e model.ErrorResponse
	assert.Equal(t, http.StatusTooManyRequests, call(t, ts, "POST", "/move", "", &e))
	assert.Equal(t, "rate limited", e.Error)

	assert.Equal(t, http.StatusConflict, call(t, ts, "GET", "/state", "", nil), "GETs are not limited")
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/generate_grid", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.test")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://ui.test", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/state", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://elsewhere.test")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSetDefaults_AppliesToNextGenerate(t *testing.T) {
	rs, ts := newTestServer(t, nil)
	rs.SetDefaults(config.MissionConfig{Size: 6, Exits: 1, MaxSize: 10})

	var resp model.GenerateResponse
	require.Equal(t, http.StatusOK, call(t, ts, "POST", "/generate_grid",
		`{"num_agents": 1, "num_survivors": 1, "num_obstacles": 0}`, &resp))
	assert.Equal(t, 6, resp.Grid.Size)
	assert.Len(t, resp.Grid.Exits, 1)
	assert.Equal(t, 6, rs.Defaults().Size)

	assert.Equal(t, http.StatusBadRequest, call(t, ts, "POST", "/generate_grid",
		`{"num_agents": 1, "num_survivors": 1, "num_obstacles": 0, "size": 11}`, nil))
}
