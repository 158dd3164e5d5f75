package imaging

import (
	"image"
	"math"
	"sort"
)

// maxSkewSamples bounds the number of foreground points fed into the convex
// hull; larger scans are sampled on a coarser grid.
const maxSkewSamples = 200000

// EstimateSkew estimates the document rotation in degrees as the orientation
// of the minimum-area bounding rectangle of the dark (ink) pixels, normalized
// to (-45, 45]. Returns 0 when there is no usable foreground.
func EstimateSkew(img *image.Gray) float64 {
	pts := foregroundPoints(img)
	if len(pts) < 3 {
		return 0
	}
	hull := convexHull(pts)
	if len(hull) < 3 {
		return 0
	}
	angle := minAreaRectAngle(hull)
	return normalizeAngle(angle)
}

// foregroundPoints samples dark pixels on a stride grid. Ink is anything
// below the Otsu split of the grayscale histogram.
func foregroundPoints(img *image.Gray) []point {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	threshold := OtsuThreshold(img)

	stride := 1
	for (w/stride)*(h/stride) > maxSkewSamples {
		stride++
	}

	pts := make([]point, 0, maxSkewSamples/4)
	for y := 0; y < h; y += stride {
		for x := 0; x < w; x += stride {
			if img.Pix[y*img.Stride+x] <= threshold {
				pts = append(pts, point{float64(x), float64(y)})
			}
		}
	}
	return pts
}

type point struct{ x, y float64 }

// convexHull computes the hull with Andrew's monotone chain.
func convexHull(pts []point) []point {
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	n := len(pts)
	if n < 3 {
		return pts
	}
	hull := make([]point, 0, 2*n)
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// minAreaRectAngle returns the orientation (degrees) of the smallest-area
// rectangle enclosing the hull. The minimal rectangle shares an edge
// direction with the hull, so only hull-edge angles need to be tried.
func minAreaRectAngle(hull []point) float64 {
	bestArea := math.MaxFloat64
	bestAngle := 0.0
	for i := 0; i < len(hull); i++ {
		j := (i + 1) % len(hull)
		theta := math.Atan2(hull[j].y-hull[i].y, hull[j].x-hull[i].x)
		cosT, sinT := math.Cos(theta), math.Sin(theta)

		minU, maxU := math.MaxFloat64, -math.MaxFloat64
		minV, maxV := math.MaxFloat64, -math.MaxFloat64
		for _, p := range hull {
			u := p.x*cosT + p.y*sinT
			v := -p.x*sinT + p.y*cosT
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		area := (maxU - minU) * (maxV - minV)
		if area < bestArea {
			bestArea = area
			bestAngle = theta * 180 / math.Pi
		}
	}
	return bestAngle
}

// normalizeAngle folds an arbitrary rectangle orientation into (-45, 45].
func normalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 90)
	if a > 45 {
		a -= 90
	} else if a <= -45 {
		a += 90
	}
	return a
}

// Rotate rotates the image counterclockwise by angleDeg about its center,
// keeping the canvas size. Sampling is bicubic with edge-replicate borders.
func Rotate(img *image.Gray, angleDeg float64) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	theta := angleDeg * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(w)/2, float64(h)/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping: where did this destination pixel come from.
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := cosT*dx - sinT*dy + cx
			sy := sinT*dx + cosT*dy + cy
			out.Pix[y*out.Stride+x] = bicubicSample(img, sx, sy)
		}
	}
	return out
}

// bicubicSample samples (x, y) with a Catmull-Rom kernel; out-of-range
// coordinates replicate the nearest edge pixel.
func bicubicSample(img *image.Gray, x, y float64) uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	var acc float64
	for m := -1; m <= 2; m++ {
		wy := cubicWeight(float64(m) - fy)
		if wy == 0 {
			continue
		}
		sy := clampInt(y0+m, 0, h-1)
		for n := -1; n <= 2; n++ {
			wx := cubicWeight(float64(n) - fx)
			if wx == 0 {
				continue
			}
			sx := clampInt(x0+n, 0, w-1)
			acc += wx * wy * float64(img.Pix[sy*img.Stride+sx])
		}
	}
	return uint8(clampInt(int(acc+0.5), 0, 255))
}

// cubicWeight is the Catmull-Rom kernel (a = -0.5).
func cubicWeight(t float64) float64 {
	const a = -0.5
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (a+2)*t*t*t - (a+3)*t*t + 1
	case t < 2:
		return a*t*t*t - 5*a*t*t + 8*a*t - 4*a
	default:
		return 0
	}
}
