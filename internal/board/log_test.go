package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drawAction(user string, points ...Point) Action {
	return Action{
		Type:   ActionDraw,
		Mode:   ModePencil,
		Points: points,
		Color:  "#000000",
		Size:   2,
		UserID: user,
	}
}

func TestLogAppendClearsRedo(t *testing.T) {
	l := NewLog()
	l.Append(drawAction("a", Point{X: 1, Y: 1}))
	l.Append(drawAction("a", Point{X: 2, Y: 2}))

	_, ok := l.Undo()
	require.True(t, ok)
	assert.True(t, l.CanRedo())

	// A new action after an undo invalidates the redo branch.
	l.Append(drawAction("a", Point{X: 3, Y: 3}))
	assert.False(t, l.CanRedo())

	_, ok = l.Redo()
	assert.False(t, ok, "redo after a fresh append must be a no-op")
	assert.Equal(t, 2, l.Len())
}

func TestLogUndoRedoInverse(t *testing.T) {
	l := NewLog()
	first := drawAction("a", Point{X: 1, Y: 1})
	second := drawAction("a", Point{X: 5, Y: 5})
	l.Append(first)
	l.Append(second)
	before := l.History()

	undone, ok := l.Undo()
	require.True(t, ok)
	assert.Equal(t, second.Points, undone.Points)
	assert.Equal(t, 1, l.Len())

	redone, ok := l.Redo()
	require.True(t, ok)
	assert.Equal(t, second.Points, redone.Points)
	assert.Equal(t, before, l.History(), "undo followed by redo must restore the exact history")
}

func TestLogUndoEmptyIsNoop(t *testing.T) {
	l := NewLog()
	_, ok := l.Undo()
	assert.False(t, ok)
	_, ok = l.Redo()
	assert.False(t, ok)
}

func TestLogReplaceDropsRedo(t *testing.T) {
	l := NewLog()
	l.Append(drawAction("a", Point{X: 1, Y: 1}))
	l.Undo()
	require.True(t, l.CanRedo())

	snapshot := []Action{drawAction("b", Point{X: 9, Y: 9})}
	l.Replace(snapshot)

	assert.False(t, l.CanRedo())
	assert.Equal(t, snapshot, l.History())
}

func TestLogHistoryIsCopy(t *testing.T) {
	l := NewLog()
	l.Append(drawAction("a", Point{X: 1, Y: 1}))
	h := l.History()
	h[0].UserID = "mutated"
	assert.Equal(t, "a", l.History()[0].UserID)
}

func TestActionValidate(t *testing.T) {
	cases := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"clear", Action{Type: ActionClear}, false},
		{"pencil", drawAction("a", Point{X: 1, Y: 1}), false},
		{"pencil no points", Action{Type: ActionDraw, Mode: ModePencil}, true},
		{"rectangle two points", Action{Type: ActionDraw, Mode: ModeRectangle, Points: []Point{{}, {X: 4, Y: 4}}}, false},
		{"rectangle one point", Action{Type: ActionDraw, Mode: ModeRectangle, Points: []Point{{}}}, true},
		{"text without position", Action{Type: ActionDraw, Mode: ModeText, Text: "hi"}, true},
		{"unknown type", Action{Type: "scribble"}, true},
		{"unknown mode", Action{Type: ActionDraw, Mode: "spray"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.action.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
