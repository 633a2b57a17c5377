package board

import (
	"bytes"
	"crypto/sha256"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Canvas is the raster drawing engine: a pure function of
// (current pixels, action) -> new pixels. Rendering never reads tool
// state from anywhere but the action itself, so replaying the same
// ordered list onto a blank canvas always produces identical output.
type Canvas struct {
	img        *image.RGBA
	background color.RGBA
}

// NewCanvas creates a blank canvas filled with white.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{
		img:        image.NewRGBA(image.Rect(0, 0, width, height)),
		background: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
	c.Clear()
	return c
}

// Clear wipes the canvas back to the background color.
func (c *Canvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: c.background}, image.Point{}, draw.Src)
}

// Apply renders a single action onto the current pixels. Structurally
// invalid actions are skipped, not rendered: a replayed history may
// contain entries the local process never had a chance to validate.
func (c *Canvas) Apply(a Action) {
	if a.IsClear() {
		c.Clear()
		return
	}
	if a.Validate() != nil {
		return
	}

	col := ParseHexColor(a.Color)
	switch a.Mode {
	case ModePencil, ModeEraser:
		// Eraser is pencil mechanics with a background-matching color:
		// it overpaints, it does not remove log entries.
		c.strokePath(a.Points, col, a.Size)
	case ModeRectangle:
		c.strokeRect(a.Points[0], a.Points[1], col, a.Size)
	case ModeCircle:
		c.strokeCircle(a.Points[0], a.Points[1], col, a.Size)
	case ModeText:
		c.fillText(a.Text, *a.Position, col, a.Size)
	}
}

// Replay clears the canvas and re-applies every action in order. This
// is the only correct way to realize an undo: canvas drawing is not
// invertible once strokes overlap.
func (c *Canvas) Replay(actions []Action) {
	c.Clear()
	for _, a := range actions {
		c.Apply(a)
	}
}

// Image exposes the backing raster.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Fingerprint hashes the pixel buffer, used to compare two canvases
// for rendering equivalence.
func (c *Canvas) Fingerprint() [32]byte {
	return sha256.Sum256(c.img.Pix)
}

// EqualPixels reports whether two canvases hold identical pixels.
func (c *Canvas) EqualPixels(other *Canvas) bool {
	return bytes.Equal(c.img.Pix, other.img.Pix)
}

// --- primitives ---

func (c *Canvas) strokePath(points []Point, col color.RGBA, size float64) {
	if len(points) == 1 {
		c.plot(points[0], col, size)
		return
	}
	for i := 1; i < len(points); i++ {
		c.line(points[i-1], points[i], col, size)
	}
}

// strokeRect draws the outline between two opposite corners. Width and
// height may be negative; normalization handles that.
func (c *Canvas) strokeRect(p0, p1 Point, col color.RGBA, size float64) {
	a := Point{X: math.Min(p0.X, p1.X), Y: math.Min(p0.Y, p1.Y)}
	b := Point{X: math.Max(p0.X, p1.X), Y: math.Max(p0.Y, p1.Y)}
	c.line(Point{X: a.X, Y: a.Y}, Point{X: b.X, Y: a.Y}, col, size)
	c.line(Point{X: b.X, Y: a.Y}, Point{X: b.X, Y: b.Y}, col, size)
	c.line(Point{X: b.X, Y: b.Y}, Point{X: a.X, Y: b.Y}, col, size)
	c.line(Point{X: a.X, Y: b.Y}, Point{X: a.X, Y: a.Y}, col, size)
}

// strokeCircle draws a circle centered at p0 whose radius is the
// distance to p1.
func (c *Canvas) strokeCircle(p0, p1 Point, col color.RGBA, size float64) {
	radius := math.Hypot(p1.X-p0.X, p1.Y-p0.Y)
	if radius < 1 {
		c.plot(p0, col, size)
		return
	}
	// Sample the circumference densely enough that adjacent samples are
	// under a pixel apart.
	steps := int(math.Ceil(2 * math.Pi * radius))
	prev := Point{X: p0.X + radius, Y: p0.Y}
	for i := 1; i <= steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		next := Point{X: p0.X + radius*math.Cos(theta), Y: p0.Y + radius*math.Sin(theta)}
		c.line(prev, next, col, size)
		prev = next
	}
}

// fillText renders text at the baseline anchor. Size acts as an integer
// scale factor over the base bitmap face.
func (c *Canvas) fillText(text string, pos Point, col color.RGBA, size float64) {
	if text == "" {
		return
	}
	scale := int(math.Round(size))
	if scale < 1 {
		scale = 1
	}

	face := basicfont.Face7x13
	d := &font.Drawer{
		Src:  image.NewUniform(col),
		Face: face,
	}
	width := d.MeasureString(text).Ceil()
	if width <= 0 {
		return
	}
	height := face.Ascent + face.Descent

	// Draw at base size on a transparent scratch image, then blit with
	// nearest-neighbor scaling so the result is pixel-deterministic.
	scratch := image.NewRGBA(image.Rect(0, 0, width, height))
	d.Dst = scratch
	d.Dot = fixed.P(0, face.Ascent)
	d.DrawString(text)

	originX := int(math.Round(pos.X))
	originY := int(math.Round(pos.Y)) - face.Ascent*scale
	bounds := c.img.Bounds()
	for sy := 0; sy < height; sy++ {
		for sx := 0; sx < width; sx++ {
			if _, _, _, alpha := scratch.At(sx, sy).RGBA(); alpha == 0 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					x := originX + sx*scale + dx
					y := originY + sy*scale + dy
					if image.Pt(x, y).In(bounds) {
						c.img.SetRGBA(x, y, col)
					}
				}
			}
		}
	}
}

// line draws a stroked segment using integer Bresenham stepping with a
// square brush of the action's size.
func (c *Canvas) line(from, to Point, col color.RGBA, size float64) {
	x0, y0 := int(math.Round(from.X)), int(math.Round(from.Y))
	x1, y1 := int(math.Round(to.X)), int(math.Round(to.Y))

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		c.brush(x0, y0, col, size)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) plot(p Point, col color.RGBA, size float64) {
	c.brush(int(math.Round(p.X)), int(math.Round(p.Y)), col, size)
}

// brush paints a square of side `size` centered on the pixel.
func (c *Canvas) brush(cx, cy int, col color.RGBA, size float64) {
	half := int(math.Round(size)) / 2
	if half < 0 {
		half = 0
	}
	bounds := c.img.Bounds()
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			if image.Pt(x, y).In(bounds) {
				c.img.SetRGBA(x, y, col)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ParseHexColor parses "#rrggbb" (or "#rgb") into an opaque RGBA.
// Unparseable input falls back to black so a malformed action still
// renders deterministically instead of failing a replay.
func ParseHexColor(s string) color.RGBA {
	c := color.RGBA{A: 0xff}
	hex := s
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	parse := func(b byte) (uint8, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}
	switch len(hex) {
	case 6:
		for i, dst := range []*uint8{&c.R, &c.G, &c.B} {
			hi, ok1 := parse(hex[i*2])
			lo, ok2 := parse(hex[i*2+1])
			if !ok1 || !ok2 {
				return color.RGBA{A: 0xff}
			}
			*dst = hi<<4 | lo
		}
	case 3:
		for i, dst := range []*uint8{&c.R, &c.G, &c.B} {
			v, ok := parse(hex[i])
			if !ok {
				return color.RGBA{A: 0xff}
			}
			*dst = v<<4 | v
		}
	default:
		return color.RGBA{A: 0xff}
	}
	return c
}
