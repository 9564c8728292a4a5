package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// GenerateRequest is the body of generate_grid and of the legacy setup call.
// Size, Seed and Exits fall back to server defaults when zero.
type GenerateRequest struct {
	NumAgents    int   `json:"num_agents"`
	NumSurvivors int   `json:"num_survivors"`
	NumObstacles int   `json:"num_obstacles"`
	Size         int   `json:"size,omitempty"`
	Exits        int   `json:"num_exits,omitempty"`
	Seed         int64 `json:"seed,omitempty"`
}

// AgentID accepts both 3 and "3"; the legacy UI sends ids as object keys.
type AgentID int

func (id *AgentID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("agent_id %q is not a number", b)
	}
	*id = AgentID(n)
	return nil
}

// MoveRequest is empty for an all-agents tick.
type MoveRequest struct {
	AgentID *AgentID `json:"agent_id,omitempty"`
}

type GenerateResponse struct {
	MissionID   string       `json:"mission_id"`
	Seed        int64        `json:"seed"`
	Grid        GridView     `json:"grid"`
	AgentStates []AgentState `json:"agent_states"`
}

type StateResponse struct {
	MissionID       string       `json:"mission_id"`
	Tick            int          `json:"tick"`
	Grid            GridView     `json:"grid"`
	AgentStates     []AgentState `json:"agent_states"`
	MissionComplete bool         `json:"mission_complete"`
	TotalSteps      int          `json:"total_steps"`
}

// AgentMoveResponse answers a single-agent move.
type AgentMoveResponse struct {
	StateResponse
	Position  Coord `json:"position"`
	Completed bool  `json:"completed"`
	TotalTime int   `json:"total_time"`
}

type LegacySetupResponse struct {
	MissionID      string           `json:"mission_id"`
	Grid           [][]string       `json:"grid"`
	AgentPositions map[string]Coord `json:"agent_positions"`
}

// LegacyMoveResponse answers a single-agent move on a mission created by setup.
type LegacyMoveResponse struct {
	LegacySetupResponse
	Position  Coord `json:"position"`
	Completed bool  `json:"completed"`
	TotalTime int   `json:"total_time"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type FrameType string

const (
	FRAME_GENERATE FrameType = "generate"
	FRAME_TICK     FrameType = "tick"
)

// Frame is pushed to every watcher after a generate or a tick.
type Frame struct {
	Type FrameType `json:"type"`
	StateResponse
}

func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
