package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

// FormatTable renders rows as a boxed table with columns sized to their widest cell.
func FormatTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := range headers {
			if i < len(row) {
				widths[i] = maxInt(widths[i], len(row[i]))
			}
		}
	}

	var b strings.Builder
	sep := separator(widths)
	b.WriteString(sep)
	writeRow(&b, widths, headers)
	b.WriteString(sep)
	for _, row := range rows {
		writeRow(&b, widths, row)
	}
	if len(rows) > 0 {
		b.WriteString(sep)
	}
	return b.String()
}

// StateRows converts the process table snapshot into table rows.
func StateRows(peers []lib.PeerStatus, now time.Time) [][]string {
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		role := "peer"
		if p.Anchor {
			role = "anchor"
		}
		state, end := "running", now
		if !p.Running() {
			state, end = "exited", *p.EndTime
			if p.ExitCode != nil {
				state = fmt.Sprintf("exited %d", *p.ExitCode)
			}
		}
		rows = append(rows, []string{
			lib.PeerName(p.PeerID),
			fmt.Sprint(p.Pid),
			role,
			fmt.Sprint(p.Port),
			state,
			end.Sub(p.StartTime).Truncate(time.Second).String(),
		})
	}
	return rows
}

// StateHeaders are the column names of the state table.
var StateHeaders = []string{"PEER", "PID", "ROLE", "PORT", "STATE", "UPTIME"}

// PrintState prints the live peers as a table.
func (c *Console) PrintState(runID string, peers []lib.PeerStatus) {
	table := FormatTable(StateHeaders, StateRows(peers, time.Now()))
	c.Printf("run %s, %d peer(s)\n%s\n", runID, len(peers), table)
}

func separator(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("-", w)
	}
	return "+-" + strings.Join(parts, "-+-") + "-+\n"
}

func writeRow(b *strings.Builder, widths []int, cells []string) {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = pad(cell, w)
	}
	b.WriteString("| " + strings.Join(parts, " | ") + " |\n")
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
