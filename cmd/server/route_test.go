package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zucenko/rescuegrid/config"
	"github.com/zucenko/rescuegrid/model"
)

func newTestHTTP(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Rescue.Hub.Loop(ctx)
	ts := httptest.NewServer(s.handler(cfg.Server.CORSOrigins))
	t.Cleanup(func() {
		cancel()
		ts.Close()
		s.Rescue.Close()
	})
	return ts
}

func post(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRoutes_Health(t *testing.T) {
	ts := newTestHTTP(t)
	resp, err := http.Get(ts.URL + URI_HEALTH)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(b))
}

func TestRoutes_APIPrefixSharesTheMission(t *testing.T) {
	ts := newTestHTTP(t)

	var gen model.GenerateResponse
	require.Equal(t, http.StatusOK, post(t, ts.URL+API_PREFIX+URI_GENERATE,
		`{"num_agents": 2, "num_survivors": 2, "num_obstacles": 3, "seed": 21}`, &gen))

	var st model.StateResponse
	require.Equal(t, http.StatusOK, post(t, ts.URL+URI_MOVE, "", &st))
	assert.Equal(t, gen.MissionID, st.MissionID)
	require.Equal(t, http.StatusOK, post(t, ts.URL+API_PREFIX+URI_MOVE, "", &st))
	assert.Equal(t, 2, st.Tick)

	for _, prefix := range []string{"", API_PREFIX} {
		resp, err := http.Get(ts.URL + prefix + "/missions/" + gen.MissionID)
		require.NoError(t, err)
		var r model.MissionReport
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, gen.MissionID, r.MissionID)
		assert.Equal(t, 2, r.Tick)
	}
}

func TestRoutes_WrongMethod(t *testing.T) {
	ts := newTestHTTP(t)
	resp, err := http.Get(ts.URL + URI_MOVE)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_PreflightAllowsAnyOriginByDefault(t *testing.T) {
	ts := newTestHTTP(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+API_PREFIX+URI_MOVE, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
