package domain

import (
	"fmt"
	"math"
)

var toolKinds = map[Tool]Kind{
	ToolPencil: KindStrokeSegment,
	ToolEraser: KindStrokeSegment,
	ToolSquare: KindShape,
	ToolCircle: KindShape,
}

// KindOf reports the event kind a tool produces.
func KindOf(t Tool) (Kind, bool) {
	k, ok := toolKinds[t]
	return k, ok
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

// Validate checks raw against the event rules and returns a normalized
// copy: the kind is inferred from the tool when absent and a stroke
// segment without an end point becomes a single dot.
func Validate(raw DrawingEvent) (DrawingEvent, error) {
	ev := raw

	if ev.Tool == "" {
		return DrawingEvent{}, invalid("tool is required")
	}
	kind, ok := KindOf(ev.Tool)
	if !ok {
		return DrawingEvent{}, invalid("unknown tool %q", ev.Tool)
	}
	switch ev.Kind {
	case "":
		ev.Kind = kind
	case KindStrokeSegment, KindShape:
		if ev.Kind != kind {
			return DrawingEvent{}, invalid("tool %q cannot produce kind %q", ev.Tool, ev.Kind)
		}
	default:
		return DrawingEvent{}, invalid("unknown kind %q", ev.Kind)
	}

	if ev.Color == "" {
		return DrawingEvent{}, invalid("color is required")
	}
	if !(ev.Size > 0) || math.IsInf(ev.Size, 0) {
		return DrawingEvent{}, invalid("size must be positive, got %v", ev.Size)
	}
	if ev.UserName == "" {
		return DrawingEvent{}, invalid("userName is required")
	}

	if ev.Kind == KindShape && (ev.EndX == nil || ev.EndY == nil) {
		return DrawingEvent{}, invalid("shape requires endX and endY")
	}
	if ev.EndX == nil {
		x := ev.X
		ev.EndX = &x
	}
	if ev.EndY == nil {
		y := ev.Y
		ev.EndY = &y
	}

	for name, v := range map[string]float64{"x": ev.X, "y": ev.Y, "endX": *ev.EndX, "endY": *ev.EndY} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return DrawingEvent{}, invalid("%s must be a non-negative number, got %v", name, v)
		}
	}

	// Sequence is assigned on append, never taken from the client.
	ev.Sequence = 0
	return ev, nil
}
