package annotate

import "math"

const (
	placementPadding = 12.0
	placementGap     = 12.0

	noteOffsetX = 8.0
	noteOffsetY = -6.0
)

// Rect is a rectangle in either viewport (client) or page coordinates;
// which one is always stated by the caller.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

type Position struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64
	Height float64
}

// Viewport is the visible window plus its scroll offset.
type Viewport struct {
	Width   float64
	Height  float64
	ScrollX float64
	ScrollY float64
}

// ToPage shifts a client rectangle by the scroll offset.
func (v Viewport) ToPage(r Rect) Rect {
	return Rect{Top: r.Top + v.ScrollY, Left: r.Left + v.ScrollX, Width: r.Width, Height: r.Height}
}

// ToViewport is the inverse of ToPage.
func (v Viewport) ToViewport(r Rect) Rect {
	return Rect{Top: r.Top - v.ScrollY, Left: r.Left - v.ScrollX, Width: r.Width, Height: r.Height}
}

func (v Viewport) PointToPage(p Point) Point {
	return Point{X: p.X + v.ScrollX, Y: p.Y + v.ScrollY}
}

// PlaceNote positions a note of the given size next to anchor, all in
// viewport coordinates. The right side is tried first, then the left,
// then below the anchor; the result is always clamped vertically.
func PlaceNote(anchor Rect, size Size, vp Viewport) Position {
	left := anchor.Right() + placementGap
	top := anchor.Top

	if left+size.Width+placementPadding > vp.Width {
		left = anchor.Left - placementGap - size.Width
	}
	if left < placementPadding {
		left = math.Min(math.Max(placementPadding, anchor.Left+placementGap), vp.Width-placementPadding-size.Width)
		top = anchor.Bottom() + placementGap
	}
	top = math.Max(placementPadding, math.Min(top, vp.Height-placementPadding-size.Height))
	return Position{Left: left, Top: top}
}

// bounds returns the smallest rectangle holding every point.
func bounds(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{Top: minY, Left: minX, Width: maxX - minX, Height: maxY - minY}
}
