// Package pipeline orchestrates the full document-to-record flow: image
// normalization, OCR, candidate fields, AI structuring, business rules. One
// document's failure never reaches the batch caller as anything but a Failed
// result.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/invoicehub/invoice-rpa/constants"
	"github.com/invoicehub/invoice-rpa/internal/common"
	"github.com/invoicehub/invoice-rpa/internal/convert"
	"github.com/invoicehub/invoice-rpa/internal/fields"
	"github.com/invoicehub/invoice-rpa/internal/llm"
	"github.com/invoicehub/invoice-rpa/internal/ocr"
	"github.com/invoicehub/invoice-rpa/internal/rules"
)

// Stage contracts. The concrete implementations live in their own packages;
// the orchestrator only needs these seams (and tests stub them).
type (
	Normalizer interface {
		Normalize(img image.Image) (*image.Gray, error)
	}
	TextExtractor interface {
		Extract(ctx context.Context, img *image.Gray) (ocr.Result, error)
	}
	FieldExtractor interface {
		ExtractFields(text string, words []ocr.Word) map[constants.FieldType]fields.Field
	}
	Validator interface {
		Validate(ctx context.Context, ocrText string, candidates map[string]string, ocrConfidence float64) (llm.InvoiceRecord, error)
		SemanticSimilarity(ctx context.Context, ocrText string, rec llm.InvoiceRecord) (float64, error)
	}
)

// Config for the orchestrator.
type Config struct {
	DPI                   int           // PDF rasterization DPI, default 300
	DocumentTimeout       time.Duration // bounds exactly one document's runtime
	MinSemanticSimilarity float64       // below this the record is flagged, default 0.6
}

// Processor runs the per-document pipeline and the batch fan-out. All stage
// collaborators are shared across workers and must be reentrant; every
// document's intermediate state is owned by its own task.
type Processor struct {
	normalizer Normalizer
	extractor  TextExtractor
	fields     FieldExtractor
	validator  Validator
	gate       rules.Gate
	renderer   convert.PageRenderer

	cfg    Config
	logger *slog.Logger
	stats  Stats
}

func NewProcessor(
	normalizer Normalizer,
	extractor TextExtractor,
	fieldExtractor FieldExtractor,
	validator Validator,
	gate rules.Gate,
	renderer convert.PageRenderer,
	cfg Config,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = 3 * time.Minute
	}
	if cfg.MinSemanticSimilarity <= 0 {
		cfg.MinSemanticSimilarity = 0.6
	}
	return &Processor{
		normalizer: normalizer,
		extractor:  extractor,
		fields:     fieldExtractor,
		validator:  validator,
		gate:       gate,
		renderer:   renderer,
		cfg:        cfg,
		logger:     logger,
	}
}

// ProcessOne runs the whole pipeline for a single document. Every stage
// error is converted into a Failed result; nothing propagates to the caller.
func (p *Processor) ProcessOne(ctx context.Context, path string) (res Result) {
	start := time.Now()
	traceID := uuid.New().String()
	ctx = common.WithTraceID(ctx, traceID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DocumentTimeout)
	defer cancel()

	log := p.logger.With("trace_id", traceID, "path", path)
	log.Info("pipeline.document.start")

	defer func() {
		// A panicking stage must not take sibling documents down with it.
		if r := recover(); r != nil {
			res = Failed(path, fmt.Errorf("stage panic: %v", r))
		}
		res.Elapsed = time.Since(start)
		p.stats.observe(res)
		if res.Status == constants.DocStatusFailed {
			log.Error("pipeline.document.failed", "error", res.Err, "elapsed_ms", res.Elapsed.Milliseconds())
		} else {
			log.Info("pipeline.document.ok",
				"invoice_number", res.Record.InvoiceNumber,
				"total_amount", res.Record.TotalAmount,
				"needs_review", res.Record.RequiresManualReview,
				"elapsed_ms", res.Elapsed.Milliseconds(),
			)
		}
	}()

	src, err := p.loadImage(ctx, path)
	if err != nil {
		return Failed(path, err)
	}

	normalized, err := p.normalizer.Normalize(src)
	if err != nil {
		return Failed(path, fmt.Errorf("%w: normalize: %v", common.ErrInput, err))
	}

	ocrRes, err := p.extractor.Extract(ctx, normalized)
	if err != nil {
		return Failed(path, err)
	}

	candidates := p.fields.ExtractFields(ocrRes.Text, ocrRes.Words)

	values := fields.Values(candidates)
	if items := fields.ExtractLineItems(ocrRes.Words); len(items) > 0 {
		if encoded, err := json.Marshal(items); err == nil {
			values["line_items"] = string(encoded)
		}
	}

	record, err := p.validator.Validate(ctx, ocrRes.Text, values, ocrRes.Confidence)
	if err != nil {
		return Failed(path, err)
	}

	similarity, err := p.validator.SemanticSimilarity(ctx, ocrRes.Text, record)
	if err != nil {
		return Failed(path, err)
	}

	record = p.gate.Apply(record)
	if similarity < p.cfg.MinSemanticSimilarity {
		record.Flag(fmt.Sprintf("low semantic coherence: %.2f", similarity))
	}

	return Result{
		Status:             constants.DocStatusSuccess,
		SourcePath:         path,
		Record:             record,
		OCRConfidence:      ocrRes.Confidence,
		SemanticSimilarity: similarity,
	}
}

// loadImage decodes a raster file or renders the first PDF page at OCR DPI.
func (p *Processor) loadImage(ctx context.Context, path string) (image.Image, error) {
	switch constants.MapExtToFormat(filepath.Ext(path)) {
	case constants.PDF:
		return p.renderer.RenderPage(ctx, path, 0, p.cfg.DPI)
	case constants.IMAGE:
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", common.ErrInput, path, err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", common.ErrInput, filepath.Ext(path))
	}
}
