package client

import (
	"io"
	"strings"

	"github.com/fatih/color"
)

// Kind classifies a server line for display.
type Kind int

const (
	KindInfo Kind = iota
	KindRoom
	KindHall
	KindAll
	KindPrivate
	KindGame
	KindWin
	KindError
)

var errorPrefixes = []string{
	"wrong command",
	"sorry, ",
	"invalid ",
	"you must ",
	"you already ",
	"you are not ",
	"you are already ",
	"user ",
	"room ",
	"username already",
	"line too long",
	"server error",
	"no round",
	"this round already",
	"the game hall is full",
}

// Classify decides how a server line is displayed.
func Classify(line string) Kind {
	switch {
	case strings.HasPrefix(line, "[21game]"):
		if strings.Contains(line, " wins with ") || strings.Contains(line, "winner: ") {
			return KindWin
		}
		return KindGame
	case strings.HasPrefix(line, "[room "):
		return KindRoom
	case strings.HasPrefix(line, "[hall] "):
		return KindHall
	case strings.HasPrefix(line, "[all] "):
		return KindAll
	case strings.HasPrefix(line, "[private] "):
		return KindPrivate
	}
	for _, p := range errorPrefixes {
		if strings.HasPrefix(line, p) {
			return KindError
		}
	}
	return KindInfo
}

// Display prints server lines in colour.
type Display struct {
	out    io.Writer
	colors map[Kind]*color.Color
}

// NewDisplay creates a display writing to out. Colour is disabled
// automatically when out is not a terminal (see color.NoColor).
func NewDisplay(out io.Writer) *Display {
	return &Display{
		out: out,
		colors: map[Kind]*color.Color{
			KindInfo:    color.New(color.FgWhite),
			KindRoom:    color.New(color.FgCyan),
			KindHall:    color.New(color.FgBlue),
			KindAll:     color.New(color.FgMagenta),
			KindPrivate: color.New(color.FgGreen),
			KindGame:    color.New(color.FgYellow, color.Bold),
			KindWin:     color.New(color.FgGreen, color.Bold, color.BgBlack),
			KindError:   color.New(color.FgRed),
		},
	}
}

// PrintLine prints one server line.
func (d *Display) PrintLine(line string) {
	_, _ = d.colors[Classify(line)].Fprintln(d.out, line)
}

// PrintStatus prints a client-side status message.
func (d *Display) PrintStatus(msg string) {
	_, _ = color.New(color.FgHiBlack).Fprintln(d.out, "* "+msg)
}
