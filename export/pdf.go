// Package export renders a board's event log to a printable document.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

const (
	margin       = 10.0
	minLineWidth = 0.1
)

type rgb struct{ r, g, b int }

var (
	black = rgb{0, 0, 0}
	white = rgb{255, 255, 255}
)

var namedColors = map[string]rgb{
	"black":  black,
	"white":  white,
	"red":    {255, 0, 0},
	"green":  {0, 128, 0},
	"blue":   {0, 0, 255},
	"yellow": {255, 255, 0},
	"orange": {255, 165, 0},
	"purple": {128, 0, 128},
	"gray":   {128, 128, 128},
	"grey":   {128, 128, 128},
}

// parseColor accepts #rgb, #rrggbb and a few CSS names. Anything else is
// drawn black.
func parseColor(s string) rgb {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c
	}
	if !strings.HasPrefix(s, "#") {
		return black
	}

	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return black
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return black
	}
	return rgb{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}
}

// PDF draws events in order onto a single A4 landscape page, scaled so the
// whole drawing fits inside the margins.
func PDF(w io.Writer, board string, events []domain.DrawingEvent) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Board "+board, true)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	pageW, pageH := pdf.GetPageSize()
	scale := fit(events, pageW-2*margin, pageH-2*margin)
	at := func(v float64) float64 { return margin + v*scale }

	for _, ev := range events {
		c := parseColor(ev.Color)
		if ev.Tool == domain.ToolEraser {
			c = white
		}
		pdf.SetDrawColor(c.r, c.g, c.b)
		pdf.SetLineWidth(math.Max(ev.Size*scale, minLineWidth))

		x1, y1 := ev.X, ev.Y
		x2, y2 := x1, y1
		if ev.EndX != nil && ev.EndY != nil {
			x2, y2 = *ev.EndX, *ev.EndY
		}

		switch ev.Tool {
		case domain.ToolPencil, domain.ToolEraser:
			pdf.Line(at(x1), at(y1), at(x2), at(y2))
		case domain.ToolSquare:
			pdf.Rect(at(math.Min(x1, x2)), at(math.Min(y1, y2)), math.Abs(x2-x1)*scale, math.Abs(y2-y1)*scale, "D")
		case domain.ToolCircle:
			cx, cy := (x1+x2)/2, (y1+y2)/2
			pdf.Ellipse(at(cx), at(cy), math.Abs(x2-x1)/2*scale, math.Abs(y2-y1)/2*scale, 0, "D")
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering board %q: %w", board, err)
	}
	return nil
}

// fit returns the canvas-to-page factor that keeps every point inside a
// width x height box. Drawings smaller than the box are not enlarged.
func fit(events []domain.DrawingEvent, width, height float64) float64 {
	maxX, maxY := 1.0, 1.0
	for _, ev := range events {
		maxX = math.Max(maxX, ev.X+ev.Size)
		maxY = math.Max(maxY, ev.Y+ev.Size)
		if ev.EndX != nil && ev.EndY != nil {
			maxX = math.Max(maxX, *ev.EndX+ev.Size)
			maxY = math.Max(maxY, *ev.EndY+ev.Size)
		}
	}
	return math.Min(1, math.Min(width/maxX, height/maxY))
}
