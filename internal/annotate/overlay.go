package annotate

import (
	"image"
	"image/color"
	"math"

	"github.com/roach88/posepipe/internal/frame"
)

// Overlay colours.
var (
	jointColor = color.RGBA{R: 255, G: 64, B: 64, A: 255}
	boneColor  = color.RGBA{R: 64, G: 255, B: 64, A: 255}
)

// MinKeypointScore is the confidence below which a keypoint is not drawn.
const MinKeypointScore = 0.3

// Overlay returns a copy of img with every pose drawn on it: limbs as lines
// between connected keypoints and joints as small squares.
func Overlay(img image.Image, poses []frame.Pose) *image.RGBA {
	dst := frame.CloneImage(img)
	for _, p := range poses {
		drawPose(dst, p)
	}
	return dst
}

func drawPose(dst *image.RGBA, p frame.Pose) {
	byName := make(map[string]frame.Keypoint, len(p.Keypoints))
	for _, kp := range p.Keypoints {
		if kp.Score >= MinKeypointScore {
			byName[kp.Name] = kp
		}
	}
	for _, bone := range frame.Skeleton {
		a, okA := byName[bone[0]]
		b, okB := byName[bone[1]]
		if !okA || !okB {
			continue
		}
		x0, y0, x1, y1, ok := clipSegment(dst.Bounds(), a.X, a.Y, b.X, b.Y)
		if ok {
			drawLine(dst, round(x0), round(y0), round(x1), round(y1), boneColor)
		}
	}
	for _, kp := range byName {
		if inReach(dst.Bounds(), kp.X, kp.Y) {
			drawJoint(dst, round(kp.X), round(kp.Y), jointColor)
		}
	}
}

// clipSegment clips the segment to the pixel centres of b with the
// Liang-Barsky algorithm. ok is false when no part of it is visible.
func clipSegment(b image.Rectangle, x0, y0, x1, y1 float64) (cx0, cy0, cx1, cy1 float64, ok bool) {
	if b.Empty() || !finite(x0, y0, x1, y1) {
		return 0, 0, 0, 0, false
	}
	minX, maxX := float64(b.Min.X), float64(b.Max.X-1)
	minY, maxY := float64(b.Min.Y), float64(b.Max.Y-1)
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0

	edges := [4][2]float64{
		{-dx, x0 - minX},
		{dx, maxX - x0},
		{-dy, y0 - minY},
		{dy, maxY - y0},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, r)
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// inReach reports whether a joint square centred on (x, y) can touch b.
func inReach(b image.Rectangle, x, y float64) bool {
	return finite(x, y) &&
		x >= float64(b.Min.X-1) && x <= float64(b.Max.X) &&
		y >= float64(b.Min.Y-1) && y <= float64(b.Max.Y)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func round(v float64) int {
	return int(math.Round(v))
}

// drawLine draws a one-pixel line with Bresenham's algorithm. Endpoints are
// expected to be clipped already; stray pixels are still bounds-checked.
func drawLine(dst *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	b := dst.Bounds()
	for {
		if image.Pt(x0, y0).In(b) {
			dst.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func drawJoint(dst *image.RGBA, x, y int, c color.RGBA) {
	b := dst.Bounds()
	for py := y - 1; py <= y+1; py++ {
		for px := x - 1; px <= x+1; px++ {
			if image.Pt(px, py).In(b) {
				dst.SetRGBA(px, py, c)
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
