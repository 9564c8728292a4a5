package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Layout symbols understood by ParseLayout.
const (
	CellFree     = '.'
	CellObstacle = 'O'
	CellWall     = '#'
	CellSurvivor = 'S'
	CellExit     = 'E'
	CellAgent    = 'A'
)

// ParseLayout reads a square text map, one row per line. Blank lines and
// lines starting with ';' are skipped, spaces inside a row are ignored.
// Agents get ids 1..n and survivors 1..m in reading order.
//
//	A . . . .
//	. O O . .
//	. . S . E
func ParseLayout(r io.Reader) (*Grid, []*Agent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)

	var rows []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		rows = append(rows, strings.ReplaceAll(line, " ", ""))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading layout: %w", err)
	}
	size := len(rows)
	if size == 0 {
		return nil, nil, fmt.Errorf("%w: empty layout", ErrInvalidParams)
	}

	var obstacles, exits, survivors []Pos
	var agents []*Agent
	for row, line := range rows {
		if len(line) != size {
			return nil, nil, fmt.Errorf("%w: layout row %d has %d cells, want %d", ErrInvalidParams, row, len(line), size)
		}
		for col, char := range line {
			p := Pos{Row: row, Col: col}
			switch char {
			case CellFree:
			case CellObstacle, CellWall:
				obstacles = append(obstacles, p)
			case CellSurvivor:
				survivors = append(survivors, p)
			case CellExit:
				exits = append(exits, p)
			case CellAgent:
				agents = append(agents, &Agent{ID: len(agents) + 1, Position: p})
			default:
				return nil, nil, fmt.Errorf("%w: unknown layout symbol %q at %v", ErrInvalidParams, char, p)
			}
		}
	}
	if len(agents) == 0 {
		return nil, nil, fmt.Errorf("%w: layout has no agents", ErrInvalidParams)
	}

	g, err := NewGrid(size, obstacles, exits, survivors)
	if err != nil {
		return nil, nil, err
	}
	return g, agents, nil
}

// FormatLayout writes grid and agents back in the ParseLayout format.
// Agents are drawn over whatever they stand on.
func FormatLayout(g *Grid, agents []*Agent) string {
	cells := make([][]byte, g.Size)
	for r := range cells {
		cells[r] = []byte(strings.Repeat(string(CellFree), g.Size))
	}
	for _, p := range g.Obstacles {
		cells[p.Row][p.Col] = CellObstacle
	}
	for _, p := range g.Exits {
		cells[p.Row][p.Col] = CellExit
	}
	for _, s := range g.Survivors {
		if !s.Rescued {
			cells[s.Position.Row][s.Position.Col] = CellSurvivor
		}
	}
	for _, a := range agents {
		if g.InBounds(a.Position) {
			cells[a.Position.Row][a.Position.Col] = CellAgent
		}
	}
	var b strings.Builder
	for _, row := range cells {
		b.Write(row)
		b.WriteByte('\n')
	}
	return b.String()
}
