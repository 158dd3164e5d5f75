package imaging

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

var errEmptyImage = errors.New("empty or undecodable image")

// ToGray converts any image to a single-channel grayscale buffer.
// Already-gray images are returned as a copy-free cast where possible.
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	flat := imaging.Grayscale(src)
	b := flat.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// Grayscale output has R==G==B; take one channel.
			out.Pix[y*out.Stride+x] = flat.Pix[y*flat.Stride+x*4]
		}
	}
	return out
}

// StdDev returns the standard deviation of pixel intensities.
func StdDev(img *image.Gray) float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	n := float64(w * h)
	if n == 0 {
		return 0
	}
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, p := range row {
			v := float64(p)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	return math.Sqrt(sumSq/n - mean*mean)
}

// Bilateral applies an edge-preserving bilateral filter with window diameter d
// and the given color/space sigmas.
func Bilateral(img *image.Gray, d int, sigmaColor, sigmaSpace float64) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	radius := d / 2

	// Spatial weights depend only on the offset; range weights only on the
	// intensity delta. Both are precomputed.
	spatial := make([]float64, d*d)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			dist := float64(dx*dx + dy*dy)
			spatial[(dy+radius)*d+(dx+radius)] = math.Exp(-dist / (2 * sigmaSpace * sigmaSpace))
		}
	}
	rangeW := make([]float64, 256)
	for i := range rangeW {
		rangeW[i] = math.Exp(-float64(i*i) / (2 * sigmaColor * sigmaColor))
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := img.Pix[y*img.Stride+x]
			var acc, norm float64
			for dy := -radius; dy <= radius; dy++ {
				sy := clampInt(y+dy, 0, h-1)
				for dx := -radius; dx <= radius; dx++ {
					sx := clampInt(x+dx, 0, w-1)
					p := img.Pix[sy*img.Stride+sx]
					diff := int(p) - int(center)
					if diff < 0 {
						diff = -diff
					}
					wgt := spatial[(dy+radius)*d+(dx+radius)] * rangeW[diff]
					acc += wgt * float64(p)
					norm += wgt
				}
			}
			out.Pix[y*out.Stride+x] = uint8(acc/norm + 0.5)
		}
	}
	return out
}

// OtsuThreshold computes the global threshold that maximizes between-class
// variance of the intensity histogram.
func OtsuThreshold(img *image.Gray) uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var hist [256]int
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, p := range row {
			hist[p]++
		}
	}
	total := w * h
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var best float64
	var threshold uint8
	var wB, sumB float64
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// Otsu binarizes with the global Otsu threshold: above-threshold pixels
// become white, the rest black.
func Otsu(img *image.Gray) *image.Gray {
	t := OtsuThreshold(img)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[y*img.Stride+x] > t {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// AdaptiveGaussian binarizes against a local Gaussian-weighted mean over a
// block×block neighborhood, offset by c. Tolerates uneven illumination.
func AdaptiveGaussian(img *image.Gray, block int, c int) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	// Sigma matched to the block size the same way OpenCV derives it.
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	blurred := gaussianBlur(img, block, sigma)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := int(blurred.Pix[y*blurred.Stride+x]) - c
			if int(img.Pix[y*img.Stride+x]) > t {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// gaussianBlur applies a separable Gaussian kernel of the given odd size.
func gaussianBlur(img *image.Gray, ksize int, sigma float64) *image.Gray {
	radius := ksize / 2
	kernel := make([]float64, ksize)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sx := clampInt(x+k, 0, w-1)
				acc += kernel[k+radius] * float64(img.Pix[y*img.Stride+sx])
			}
			tmp[y*w+x] = acc
		}
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sy := clampInt(y+k, 0, h-1)
				acc += kernel[k+radius] * tmp[sy*w+x]
			}
			out.Pix[y*out.Stride+x] = uint8(acc + 0.5)
		}
	}
	return out
}

// CLAHE applies clip-limited adaptive histogram equalization over a
// tilesX×tilesY grid, interpolating bilinearly between tile mappings.
func CLAHE(img *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w < tilesX || h < tilesY {
		return img
	}
	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY

	// Per-tile clipped-histogram LUTs.
	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)

			var hist [256]int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[img.Pix[y*img.Stride+x]]++
				}
			}
			area := (x1 - x0) * (y1 - y0)
			clip := int(clipLimit * float64(area) / 256)
			if clip < 1 {
				clip = 1
			}

			// Clip histogram bins and spread the excess evenly.
			excess := 0
			for i := range hist {
				if hist[i] > clip {
					excess += hist[i] - clip
					hist[i] = clip
				}
			}
			per := excess / 256
			rem := excess % 256
			for i := range hist {
				hist[i] += per
				if i < rem {
					hist[i]++
				}
			}

			cdf := 0
			lut := &luts[ty*tilesX+tx]
			for i := 0; i < 256; i++ {
				cdf += hist[i]
				lut[i] = uint8(clampInt(cdf*255/area, 0, 255))
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Tile-center coordinates for bilinear blending.
			fx := (float64(x)-float64(tileW)/2 + 0.5) / float64(tileW)
			fy := (float64(y)-float64(tileH)/2 + 0.5) / float64(tileH)
			tx0 := clampInt(int(math.Floor(fx)), 0, tilesX-1)
			ty0 := clampInt(int(math.Floor(fy)), 0, tilesY-1)
			tx1 := clampInt(tx0+1, 0, tilesX-1)
			ty1 := clampInt(ty0+1, 0, tilesY-1)
			wx := fx - math.Floor(fx)
			wy := fy - math.Floor(fy)
			if fx < 0 {
				wx = 0
			}
			if fy < 0 {
				wy = 0
			}

			p := img.Pix[y*img.Stride+x]
			top := (1-wx)*float64(luts[ty0*tilesX+tx0][p]) + wx*float64(luts[ty0*tilesX+tx1][p])
			bot := (1-wx)*float64(luts[ty1*tilesX+tx0][p]) + wx*float64(luts[ty1*tilesX+tx1][p])
			out.Pix[y*out.Stride+x] = uint8((1-wy)*top + wy*bot + 0.5)
		}
	}
	return out
}

// largestComponentBounds finds the bounding box of the largest 4-connected
// white region. Returns false when the image has no white pixels.
func largestComponentBounds(img *image.Gray) (image.Rectangle, bool) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	visited := make([]bool, w*h)
	var best image.Rectangle
	bestArea := 0

	var queue []int
	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			idx := sy*w + sx
			if visited[idx] || img.Pix[sy*img.Stride+sx] == 0 {
				continue
			}
			// Flood fill with an explicit queue; recursion depth is not an
			// option on page-sized scans.
			minX, minY, maxX, maxY := sx, sy, sx, sy
			area := 0
			visited[idx] = true
			queue = append(queue[:0], idx)
			for len(queue) > 0 {
				cur := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				cx, cy := cur%w, cur/w
				area++
				minX, maxX = min(minX, cx), max(maxX, cx)
				minY, maxY = min(minY, cy), max(maxY, cy)
				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := cx+d[0], cy+d[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if !visited[nidx] && img.Pix[ny*img.Stride+nx] != 0 {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}
			if area > bestArea {
				bestArea = area
				best = image.Rect(minX, minY, maxX+1, maxY+1)
			}
		}
	}
	return best, bestArea > 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
