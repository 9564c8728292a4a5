package model

// Coord is a [row, col] pair, the way the UI indexes cells.
type Coord [2]int

type SurvivorView struct {
	Position Coord `json:"position"`
}

// GridView is the grid shape every non-legacy response carries. Survivors
// lists only those still waiting for an agent. Hazards repeats Obstacles
// for UI variants that render them separately.
type GridView struct {
	Size      int            `json:"size"`
	Obstacles []Coord        `json:"obstacles"`
	Hazards   []Coord        `json:"hazards"`
	Survivors []SurvivorView `json:"survivors"`
	Exits     []Coord        `json:"exits"`
	Agents    []Coord        `json:"agents"`
}

type AgentState struct {
	ID            int    `json:"id"`
	Position      Coord  `json:"position"`
	Steps         int    `json:"steps"`
	Carrying      bool   `json:"carrying"`
	Completed     bool   `json:"completed"`
	Status        string `json:"status"`
	Stalled       bool   `json:"stalled"`
	CurrentTarget *Coord `json:"current_target"`
}

// MissionReport is the archived summary of one generated mission.
type MissionReport struct {
	MissionID  string  `json:"mission_id"`
	Seed       int64   `json:"seed"`
	Size       int     `json:"size"`
	Agents     int     `json:"num_agents"`
	Tick       int     `json:"tick"`
	Survivors  int     `json:"survivors"`
	Rescued    int     `json:"rescued"`
	Delivered  int     `json:"delivered"`
	Stranded   []Coord `json:"stranded"`
	Stalled    []int   `json:"stalled"`
	Complete   bool    `json:"mission_complete"`
	TotalSteps int     `json:"total_steps"`
}

// Legacy grid symbols.
const (
	SymbolEmpty    = "."
	SymbolObstacle = "O"
	SymbolHazard   = "H"
	SymbolSurvivor = "S"
	SymbolExit     = "E"
	SymbolAgent    = "A"
)
