package ocr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/invoicehub/invoice-rpa/internal/common"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language string // default "ita+eng"
	PSM      int    // 6 is good for a uniform block of text
	OEM      int    // 3 = default engine

	TessdataDir string
}

// BBox is a word bounding box in normalized-image pixel coordinates.
type BBox struct {
	X, Y, W, H int
}

// Word is one recognized token with its engine confidence (0..100) and
// layout position.
type Word struct {
	Text       string
	Confidence float64
	BBox       BBox
	Block      int
	Line       int
}

// Result is the outcome of one OCR pass over a normalized image.
// Confidence is the arithmetic mean over words with confidence > 0;
// zero-confidence entries are layout artifacts and excluded.
type Result struct {
	Text       string
	Confidence float64
	Words      []Word
}

// Extractor runs the external OCR engine over normalized images. Instances
// are stateless and safe for concurrent use across batch workers.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "ita+eng"
	}
	if cfg.PSM == 0 {
		cfg.PSM = 6
	}
	if cfg.OEM == 0 {
		cfg.OEM = 3
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// Extract runs the engine twice over img: once for the plain text stream and
// once in TSV mode for word-level geometry and confidence.
func (e *Extractor) Extract(ctx context.Context, img *image.Gray) (Result, error) {
	start := time.Now()

	path, cleanup, err := writeTempPNG(img)
	if err != nil {
		return Result{}, fmt.Errorf("%w: stage image: %v", common.ErrOCREngine, err)
	}
	defer cleanup()

	text, err := e.runText(ctx, path)
	if err != nil {
		return Result{}, err
	}
	words, err := e.runTSV(ctx, path)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Text:       Normalize(text),
		Confidence: meanConfidence(words),
		Words:      words,
	}
	e.logger.Info("ocr.extract.ok",
		"words", len(res.Words),
		"avg_confidence", fmt.Sprintf("%.2f", res.Confidence),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) runText(ctx context.Context, path string) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.args(path)...)
	if err != nil {
		return "", fmt.Errorf("%w: tesseract: %v: %s", common.ErrOCREngine, err, truncate(string(errb), 512))
	}
	return string(out), nil
}

func (e *Extractor) runTSV(ctx context.Context, path string) ([]Word, error) {
	args := append(e.args(path), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract tsv: %v: %s", common.ErrOCREngine, err, truncate(string(errb), 512))
	}
	return parseTSV(out), nil
}

func (e *Extractor) args(path string) []string {
	args := []string{path, "stdout", "-l", e.cfg.Language,
		"--psm", fmt.Sprintf("%d", e.cfg.PSM),
		"--oem", fmt.Sprintf("%d", e.cfg.OEM),
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

func meanConfidence(words []Word) float64 {
	var sum float64
	var n int
	for _, w := range words {
		if w.Confidence > 0 {
			sum += w.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func writeTempPNG(img *image.Gray) (string, func(), error) {
	f, err := os.CreateTemp("", "invoice-ocr-*.png")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}
