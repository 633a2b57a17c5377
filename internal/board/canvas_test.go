package board

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayDeterminism(t *testing.T) {
	actions := []Action{
		{Type: ActionDraw, Mode: ModeRectangle, Points: []Point{{X: 10, Y: 10}, {X: 100, Y: 80}}, Color: "#ff0000", Size: 3, UserID: "a"},
		{Type: ActionDraw, Mode: ModePencil, Points: []Point{{X: 5, Y: 5}, {X: 40, Y: 22}, {X: 60, Y: 70}}, Color: "#00ff00", Size: 2, UserID: "b"},
		{Type: ActionDraw, Mode: ModeCircle, Points: []Point{{X: 64, Y: 64}, {X: 90, Y: 64}}, Color: "#0000ff", Size: 1, UserID: "a"},
		{Type: ActionDraw, Mode: ModeText, Text: "hello", Position: &Point{X: 20, Y: 110}, Color: "#333333", Size: 2, UserID: "b"},
	}

	first := NewCanvas(128, 128)
	first.Replay(actions)
	second := NewCanvas(128, 128)
	second.Replay(actions)

	assert.True(t, first.EqualPixels(second), "two replays of the same list must be pixel-identical")
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
}

func TestRectangleCorners(t *testing.T) {
	c := NewCanvas(128, 128)
	c.Apply(Action{
		Type: ActionDraw, Mode: ModeRectangle,
		Points: []Point{{X: 10, Y: 10}, {X: 100, Y: 80}},
		Color:  "#ff0000", Size: 1, UserID: "a",
	})

	red := color.RGBA{R: 0xff, A: 0xff}
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	assert.Equal(t, red, c.Image().RGBAAt(10, 10))
	assert.Equal(t, red, c.Image().RGBAAt(100, 80))
	assert.Equal(t, red, c.Image().RGBAAt(55, 10), "top edge")
	assert.Equal(t, white, c.Image().RGBAAt(55, 45), "interior stays unfilled")
}

func TestRectangleNegativeExtent(t *testing.T) {
	// Corners given in reverse order must draw the same outline.
	forward := NewCanvas(64, 64)
	forward.Apply(Action{Type: ActionDraw, Mode: ModeRectangle, Points: []Point{{X: 5, Y: 5}, {X: 40, Y: 30}}, Color: "#000000", Size: 1, UserID: "a"})

	reverse := NewCanvas(64, 64)
	reverse.Apply(Action{Type: ActionDraw, Mode: ModeRectangle, Points: []Point{{X: 40, Y: 30}, {X: 5, Y: 5}}, Color: "#000000", Size: 1, UserID: "a"})

	assert.True(t, forward.EqualPixels(reverse))
}

func TestClearActionWipes(t *testing.T) {
	c := NewCanvas(64, 64)
	c.Apply(Action{Type: ActionDraw, Mode: ModePencil, Points: []Point{{X: 1, Y: 1}, {X: 50, Y: 50}}, Color: "#000000", Size: 3, UserID: "a"})

	blank := NewCanvas(64, 64)
	require.False(t, c.EqualPixels(blank))

	c.Apply(Action{Type: ActionClear, UserID: "a"})
	assert.True(t, c.EqualPixels(blank))
}

func TestEraserOverpaints(t *testing.T) {
	c := NewCanvas(64, 64)
	stroke := Action{Type: ActionDraw, Mode: ModePencil, Points: []Point{{X: 10, Y: 10}, {X: 30, Y: 10}}, Color: "#000000", Size: 1, UserID: "a"}
	c.Apply(stroke)

	// Eraser with the background color visually removes the stroke.
	erase := stroke
	erase.Mode = ModeEraser
	erase.Color = "#ffffff"
	erase.Size = 4
	c.Apply(erase)

	assert.True(t, c.EqualPixels(NewCanvas(64, 64)))
}

func TestRenderUsesActionColorNotDefaults(t *testing.T) {
	// A late joiner replaying the list sees the author's captured color,
	// regardless of any "current tool" notion.
	a := Action{Type: ActionDraw, Mode: ModePencil, Points: []Point{{X: 8, Y: 8}}, Color: "#ff0000", Size: 1, UserID: "a"}
	c := NewCanvas(32, 32)
	c.Apply(a)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, c.Image().RGBAAt(8, 8))
}

func TestReplaySkipsStructurallyInvalidActions(t *testing.T) {
	valid := Action{Type: ActionDraw, Mode: ModePencil, Points: []Point{{X: 5, Y: 5}, {X: 50, Y: 50}}, Color: "#000000", Size: 2, UserID: "a"}

	// A replayed history may contain entries this process never
	// validated; rendering them must not crash, it must skip them.
	mixed := []Action{
		valid,
		{Type: ActionDraw, Mode: ModeRectangle, Points: []Point{{X: 1, Y: 1}}, Color: "#ff0000", Size: 1, UserID: "b"},
		{Type: ActionDraw, Mode: ModeCircle, Points: nil, Color: "#ff0000", Size: 1, UserID: "b"},
		{Type: ActionDraw, Mode: ModeText, Text: "x", Position: nil, Color: "#ff0000", Size: 1, UserID: "b"},
		{Type: ActionDraw, Mode: Mode("spray"), Points: []Point{{X: 2, Y: 2}}, Color: "#ff0000", Size: 1, UserID: "b"},
	}

	c := NewCanvas(64, 64)
	require.NotPanics(t, func() { c.Replay(mixed) })

	onlyValid := NewCanvas(64, 64)
	onlyValid.Apply(valid)
	assert.True(t, c.EqualPixels(onlyValid), "invalid entries must leave no pixels behind")
}

func TestParseHexColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, ParseHexColor("#ff0000"))
	assert.Equal(t, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff}, ParseHexColor("#112233"))
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, ParseHexColor("#fff"))
	assert.Equal(t, color.RGBA{A: 0xff}, ParseHexColor("not-a-color"), "malformed input falls back to black")
}
