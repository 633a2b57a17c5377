package board

import (
	"errors"
	"fmt"
)

// ActionType 액션 종류
type ActionType string

const (
	ActionDraw  ActionType = "draw"
	ActionClear ActionType = "clear"
)

// Mode 그리기 도구 모드
type Mode string

const (
	ModePencil    Mode = "pencil"
	ModeRectangle Mode = "rectangle"
	ModeCircle    Mode = "circle"
	ModeText      Mode = "text"
	ModeEraser    Mode = "eraser"
)

// Point 캔버스 좌표
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Action is the atomic, immutable unit of whiteboard history.
// Color and Size are captured when the action is created and never
// recomputed: replaying an action always uses the action's own values,
// not whatever tool settings are current at replay time. That is what
// makes full-history replay deterministic.
type Action struct {
	ID   string     `json:"id,omitempty"`
	Seq  int64      `json:"seq,omitempty"` // relay-stamped, monotonically increasing per room
	Type ActionType `json:"type"`
	Mode Mode       `json:"mode,omitempty"`

	// For pencil/eraser this is the full freehand stroke at pointer-move
	// resolution. For rectangle/circle it holds exactly the anchor point
	// and the release point.
	Points []Point `json:"points,omitempty"`

	Color string  `json:"color,omitempty"`
	Size  float64 `json:"size,omitempty"`

	// Text mode only. Position is the baseline anchor.
	Text     string `json:"text,omitempty"`
	Position *Point `json:"position,omitempty"`

	UserID string `json:"userId"`
}

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrUnknownMode       = errors.New("unknown drawing mode")
)

// Validate checks structural invariants before an action enters a log.
func (a Action) Validate() error {
	switch a.Type {
	case ActionClear:
		return nil
	case ActionDraw:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}

	switch a.Mode {
	case ModePencil, ModeEraser:
		if len(a.Points) == 0 {
			return fmt.Errorf("%s action requires at least one point", a.Mode)
		}
	case ModeRectangle, ModeCircle:
		if len(a.Points) != 2 {
			return fmt.Errorf("%s action requires exactly two points, got %d", a.Mode, len(a.Points))
		}
	case ModeText:
		if a.Position == nil {
			return errors.New("text action requires a position")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, a.Mode)
	}
	return nil
}

// IsClear reports whether the action wipes the canvas.
func (a Action) IsClear() bool {
	return a.Type == ActionClear
}
