// Package console is the single sink every peer reader and the supervisor print through.
//
// Output is organised in blocks: the first line of a block carries a colored "peer<N>: " label, the
// following lines a dash spacer of the same width, and a blank line closes the block. A block is written
// under one lock shared by all writers, so blocks of different peers never interleave.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
)

// Color modes accepted by New.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// palette is indexed by peer id modulo its length.
var palette = []lipgloss.Color{
	lipgloss.Color("1"), // red
	lipgloss.Color("4"), // blue
	lipgloss.Color("6"), // cyan
	lipgloss.Color("2"), // green
	lipgloss.Color("5"), // magenta
	lipgloss.Color("3"), // yellow
	lipgloss.Color("7"), // white
}

// ColorFor returns the palette color of a peer.
func ColorFor(peerID int) lipgloss.Color {
	return palette[paletteIndex(peerID)]
}

func paletteIndex(peerID int) int {
	i := peerID % len(palette)
	if i < 0 {
		i += len(palette)
	}
	return i
}

// Console serializes writes to the underlying writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	peerStyles []lipgloss.Style
	errStyle   lipgloss.Style
}

// New creates a Console writing to w. mode is one of ColorAuto, ColorAlways or ColorNever;
// in auto mode colors are used only when w is a terminal.
func New(w io.Writer, mode string) *Console {
	renderer := lipgloss.NewRenderer(w)
	switch mode {
	case ColorAlways:
		renderer.SetColorProfile(termenv.ANSI)
	case ColorNever:
		renderer.SetColorProfile(termenv.Ascii)
	}

	styles := make([]lipgloss.Style, len(palette))
	for i, c := range palette {
		styles[i] = renderer.NewStyle().Foreground(c)
	}

	return &Console{
		out:        w,
		peerStyles: styles,
		errStyle:   renderer.NewStyle().Background(lipgloss.Color("1")).Foreground(lipgloss.Color("15")),
	}
}

func (c *Console) style(peerID int, stream lib.StreamKind) lipgloss.Style {
	if stream == lib.StreamStderr {
		return c.errStyle
	}
	return c.peerStyles[paletteIndex(peerID)]
}

// Label returns the uncolored label text of a peer, e.g. "peer3: ".
func Label(peerID int) string {
	return lib.PeerName(peerID) + ": "
}

// Spacer returns the uncolored continuation prefix lined up with Label, e.g. "------ ".
func Spacer(peerID int) string {
	return strings.Repeat("-", len(lib.PeerName(peerID))+1) + " "
}

// PrintBlock prints lines of one peer stream as a single block. The first line is always printed,
// following empty lines are skipped. It returns the number of lines written.
func (c *Console) PrintBlock(peerID int, stream lib.StreamKind, lines []string) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	style := c.style(peerID, stream)
	label := style.Render(lib.PeerName(peerID)) + ": "
	spacer := style.Render(strings.Repeat("-", len(lib.PeerName(peerID))+1)) + " "

	var b strings.Builder
	b.WriteString(label)
	b.WriteString(lines[0])
	b.WriteByte('\n')
	printed := 1
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		b.WriteString(spacer)
		b.WriteString(line)
		b.WriteByte('\n')
		printed++
	}
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, b.String()); err != nil {
		return 0, err
	}
	return printed, nil
}

// Printf prints a supervisor message.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Println prints a supervisor message followed by a newline.
func (c *Console) Println(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, args...)
}

// Write implements io.Writer so that external commands can share the console.
// Each call is written atomically with respect to peer blocks.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}
