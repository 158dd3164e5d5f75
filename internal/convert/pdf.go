// Package convert renders paginated documents to raster images for the OCR
// pipeline.
package convert

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/gen2brain/go-fitz"

	"github.com/invoicehub/invoice-rpa/internal/common"
)

// PageRenderer turns one page of a paginated document into an image.
type PageRenderer interface {
	RenderPage(ctx context.Context, path string, page int, dpi int) (image.Image, error)
}

// PDFRenderer renders PDF pages with MuPDF. Each call opens its own document
// handle, so instances are safe for concurrent use across batch workers.
type PDFRenderer struct {
	logger *slog.Logger
}

func NewPDFRenderer(logger *slog.Logger) *PDFRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFRenderer{logger: logger}
}

func (r *PDFRenderer) RenderPage(ctx context.Context, path string, page int, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf %s: %v", common.ErrInput, path, err)
	}
	defer func() {
		if err := doc.Close(); err != nil {
			r.logger.Warn("pdf close error", "path", path, "error", err)
		}
	}()

	if page >= doc.NumPage() {
		return nil, fmt.Errorf("%w: page %d out of range (%d pages)", common.ErrInput, page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("%w: render page %d of %s: %v", common.ErrInput, page, path, err)
	}
	r.logger.Debug("pdf page rendered", "path", path, "page", page, "dpi", dpi)
	return img, nil
}
