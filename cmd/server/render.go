package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zucenko/rescuegrid/engine"
	"github.com/zucenko/rescuegrid/model"
)

var (
	cellStyle     = lipgloss.NewStyle().Width(2)
	emptyStyle    = cellStyle.Foreground(lipgloss.Color("240"))
	obstacleStyle = cellStyle.Foreground(lipgloss.Color("245")).Bold(true)
	exitStyle     = cellStyle.Foreground(lipgloss.Color("10")).Bold(true)
	survivorStyle = cellStyle.Foreground(lipgloss.Color("9")).Bold(true)
	agentStyle    = cellStyle.Foreground(lipgloss.Color("12")).Bold(true)
	carryStyle    = cellStyle.Foreground(lipgloss.Color("11")).Bold(true)
	frameStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderView draws the grid with the legacy symbols. Agents carrying a
// survivor are highlighted.
func renderView(v *engine.View) string {
	carrying := make(map[engine.Pos]bool)
	for _, a := range v.Agents {
		if a.Carrying {
			carrying[a.Position] = true
		}
	}

	matrix := model.SymbolMatrix(v.Grid, v.Agents)
	rows := make([]string, len(matrix))
	for r, row := range matrix {
		var b strings.Builder
		for c, sym := range row {
			style := emptyStyle
			switch sym {
			case model.SymbolObstacle:
				style = obstacleStyle
			case model.SymbolExit:
				style = exitStyle
			case model.SymbolSurvivor:
				style = survivorStyle
			case model.SymbolAgent:
				style = agentStyle
				if carrying[engine.Pos{Row: r, Col: c}] {
					style = carryStyle
				}
			}
			b.WriteString(style.Render(sym))
		}
		rows[r] = b.String()
	}

	status := "running"
	if v.Complete {
		status = "complete"
	}
	header := fmt.Sprintf("tick %d  steps %d  waiting %d  %s", v.Tick, v.TotalSteps(), len(v.Grid.Pool()), status)
	return frameStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(rows, "\n")))
}
