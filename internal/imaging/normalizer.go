package imaging

import (
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
)

// Config for the image normalizer. Zero values fall back to the defaults the
// OCR stage is tuned for.
type Config struct {
	MaxWidth int // resize cap; images wider than this are downscaled

	ContrastThreshold float64 // std-dev cutoff between Otsu and adaptive binarization
	SkewThreshold     float64 // degrees; smaller estimated angles are not corrected
	CropMargin        int     // pixels kept around the detected document box
}

// Normalizer runs the fixed-order image pipeline that prepares a scanned
// invoice for OCR. It holds no mutable state; Normalize is safe for
// concurrent use.
type Normalizer struct {
	cfg    Config
	logger *slog.Logger
}

func NewNormalizer(cfg Config, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 3000
	}
	if cfg.ContrastThreshold <= 0 {
		cfg.ContrastThreshold = 50
	}
	if cfg.SkewThreshold <= 0 {
		cfg.SkewThreshold = 0.5
	}
	if cfg.CropMargin <= 0 {
		cfg.CropMargin = 10
	}
	return &Normalizer{cfg: cfg, logger: logger}
}

// Normalize applies the full pipeline: resize, grayscale, denoise, deskew,
// binarize, crop borders, local contrast enhancement. Each step is a pure
// function of its input image.
func (n *Normalizer) Normalize(src image.Image) (*image.Gray, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, errEmptyImage
	}

	src = n.resizeIfNeeded(src)
	img := ToGray(src)
	img = Bilateral(img, 9, 75, 75)
	img = n.deskew(img)
	img = n.binarize(img)
	img = n.cropBorders(img)
	img = CLAHE(img, 2.0, 8, 8)
	return img, nil
}

func (n *Normalizer) resizeIfNeeded(src image.Image) image.Image {
	w := src.Bounds().Dx()
	if w <= n.cfg.MaxWidth {
		return src
	}
	out := imaging.Resize(src, n.cfg.MaxWidth, 0, imaging.Box)
	n.logger.Debug("image resized", "original_width", w, "new_width", n.cfg.MaxWidth)
	return out
}

func (n *Normalizer) deskew(img *image.Gray) *image.Gray {
	angle := EstimateSkew(img)
	if math.Abs(angle) <= n.cfg.SkewThreshold {
		return img
	}
	n.logger.Debug("image deskewed", "angle_deg", angle)
	return Rotate(img, angle)
}

func (n *Normalizer) binarize(img *image.Gray) *image.Gray {
	// Otsu wants a clean bimodal histogram; adaptive thresholding tolerates
	// the uneven illumination Otsu cannot.
	if StdDev(img) > n.cfg.ContrastThreshold {
		return Otsu(img)
	}
	return AdaptiveGaussian(img, 11, 2)
}

// cropBorders crops to the bounding box of the largest white region (the
// document face on a binarized scan) plus a fixed margin. Passes the image
// through unchanged when no region is found.
func (n *Normalizer) cropBorders(img *image.Gray) *image.Gray {
	box, ok := largestComponentBounds(img)
	if !ok {
		return img
	}
	m := n.cfg.CropMargin
	box.Min.X = max(0, box.Min.X-m)
	box.Min.Y = max(0, box.Min.Y-m)
	box.Max.X = min(img.Bounds().Dx(), box.Max.X+m)
	box.Max.Y = min(img.Bounds().Dy(), box.Max.Y+m)
	return crop(img, box)
}

// Regions splits a normalized page into header, body and footer bands.
// Useful for targeted extraction and debugging; not part of the main pipeline.
func Regions(img *image.Gray) map[string]*image.Gray {
	h := img.Bounds().Dy()
	w := img.Bounds().Dx()
	return map[string]*image.Gray{
		"header": crop(img, image.Rect(0, 0, w, h/4)),
		"body":   crop(img, image.Rect(0, h/4, w, h*3/4)),
		"footer": crop(img, image.Rect(0, h*3/4, w, h)),
	}
}

func crop(img *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Add(img.Bounds().Min).Intersect(img.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		srcOff := img.PixOffset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], img.Pix[srcOff:srcOff+r.Dx()])
	}
	return out
}
