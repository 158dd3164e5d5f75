package pipeline

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invoicehub/invoice-rpa/constants"
	"github.com/invoicehub/invoice-rpa/internal/common"
	"github.com/invoicehub/invoice-rpa/internal/fields"
	"github.com/invoicehub/invoice-rpa/internal/llm"
	"github.com/invoicehub/invoice-rpa/internal/ocr"
	"github.com/invoicehub/invoice-rpa/internal/rules"
)

type fakeNormalizer struct {
	err   error
	panic bool
}

func (f fakeNormalizer) Normalize(img image.Image) (*image.Gray, error) {
	if f.panic {
		panic("normalizer blew up")
	}
	if f.err != nil {
		return nil, f.err
	}
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

type fakeExtractor struct {
	res ocr.Result
	err error
}

func (f fakeExtractor) Extract(context.Context, *image.Gray) (ocr.Result, error) {
	return f.res, f.err
}

type fakeFields struct{}

func (fakeFields) ExtractFields(string, []ocr.Word) map[constants.FieldType]fields.Field {
	return map[constants.FieldType]fields.Field{
		constants.FieldInvoiceNumber: {Value: "2024/001"},
	}
}

type fakeValidator struct {
	rec        llm.InvoiceRecord
	recErr     error
	similarity float64
	simErr     error
}

func (f fakeValidator) Validate(_ context.Context, _ string, _ map[string]string, ocrConfidence float64) (llm.InvoiceRecord, error) {
	rec := f.rec
	rec.OCRConfidence = ocrConfidence
	return rec, f.recErr
}

func (f fakeValidator) SemanticSimilarity(context.Context, string, llm.InvoiceRecord) (float64, error) {
	return f.similarity, f.simErr
}

type fakeRenderer struct {
	calls int
	dpi   int
}

func (f *fakeRenderer) RenderPage(_ context.Context, _ string, _ int, dpi int) (image.Image, error) {
	f.calls++
	f.dpi = dpi
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return path
}

func goodRecord() llm.InvoiceRecord {
	return llm.InvoiceRecord{
		InvoiceNumber:     "2024/001",
		TotalAmount:       1000,
		AIValidationScore: 0.9,
	}
}

func newTestProcessor(n Normalizer, e TextExtractor, v Validator, r *fakeRenderer) *Processor {
	if r == nil {
		r = &fakeRenderer{}
	}
	return NewProcessor(n, e, fakeFields{}, v, rules.NewGate(0, 0, 0, 0), r, Config{}, nil)
}

func TestProcessOneSuccess(t *testing.T) {
	path := writePNG(t, t.TempDir(), "invoice.png")
	p := newTestProcessor(
		fakeNormalizer{},
		fakeExtractor{res: ocr.Result{Text: "Fattura", Confidence: 90}},
		fakeValidator{rec: goodRecord(), similarity: 0.9},
		nil,
	)

	res := p.ProcessOne(context.Background(), path)
	if res.Status != constants.DocStatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.SourcePath != path {
		t.Errorf("SourcePath = %q", res.SourcePath)
	}
	if res.Record.RequiresManualReview {
		t.Errorf("clean document flagged: %v", res.Record.ValidationNotes)
	}
	if res.OCRConfidence != 90 || res.Record.OCRConfidence != 90 {
		t.Errorf("OCR confidence not carried through: %.1f / %.1f", res.OCRConfidence, res.Record.OCRConfidence)
	}
	if res.SemanticSimilarity != 0.9 {
		t.Errorf("SemanticSimilarity = %.2f", res.SemanticSimilarity)
	}
	if res.Elapsed <= 0 {
		t.Error("Elapsed not recorded")
	}
}

func TestProcessOneLowSimilarityFlagged(t *testing.T) {
	path := writePNG(t, t.TempDir(), "invoice.png")
	p := newTestProcessor(
		fakeNormalizer{},
		fakeExtractor{res: ocr.Result{Confidence: 90}},
		fakeValidator{rec: goodRecord(), similarity: 0.3},
		nil,
	)

	res := p.ProcessOne(context.Background(), path)
	if res.Status != constants.DocStatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if !res.Record.RequiresManualReview {
		t.Fatal("low similarity must flag the record")
	}
	found := false
	for _, note := range res.Record.ValidationNotes {
		if strings.Contains(note, "low semantic coherence") {
			found = true
		}
	}
	if !found {
		t.Errorf("notes = %v", res.Record.ValidationNotes)
	}
}

func TestProcessOneUnsupportedExtension(t *testing.T) {
	p := newTestProcessor(fakeNormalizer{}, fakeExtractor{}, fakeValidator{}, nil)
	res := p.ProcessOne(context.Background(), "notes.txt")
	if res.Status != constants.DocStatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if !errors.Is(res.Err, common.ErrInput) {
		t.Errorf("err = %v, want ErrInput", res.Err)
	}
}

func TestProcessOnePDFUsesRenderer(t *testing.T) {
	r := &fakeRenderer{}
	p := newTestProcessor(
		fakeNormalizer{},
		fakeExtractor{res: ocr.Result{Confidence: 90}},
		fakeValidator{rec: goodRecord(), similarity: 0.9},
		r,
	)

	res := p.ProcessOne(context.Background(), "invoice.pdf")
	if res.Status != constants.DocStatusSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if r.calls != 1 {
		t.Errorf("renderer calls = %d, want 1", r.calls)
	}
	if r.dpi != 300 {
		t.Errorf("dpi = %d, want the default 300", r.dpi)
	}
}

func TestProcessOneValidatorFailure(t *testing.T) {
	path := writePNG(t, t.TempDir(), "invoice.png")
	p := newTestProcessor(
		fakeNormalizer{},
		fakeExtractor{res: ocr.Result{Confidence: 90}},
		fakeValidator{recErr: errors.New("structuring exhausted")},
		nil,
	)

	res := p.ProcessOne(context.Background(), path)
	if res.Status != constants.DocStatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "structuring exhausted") {
		t.Errorf("err = %v", res.Err)
	}
}

func TestProcessOneStagePanicBecomesFailure(t *testing.T) {
	path := writePNG(t, t.TempDir(), "invoice.png")
	p := newTestProcessor(fakeNormalizer{panic: true}, fakeExtractor{}, fakeValidator{}, nil)

	res := p.ProcessOne(context.Background(), path)
	if res.Status != constants.DocStatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "stage panic") {
		t.Errorf("err = %v", res.Err)
	}
}

func TestProcessBatch(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writePNG(t, dir, "a.png"),
		writePNG(t, dir, "b.png"),
		filepath.Join(dir, "broken.txt"), // unsupported, fails before any I/O
		writePNG(t, dir, "c.png"),
		writePNG(t, dir, "d.png"),
	}
	p := newTestProcessor(
		fakeNormalizer{},
		fakeExtractor{res: ocr.Result{Confidence: 90}},
		fakeValidator{rec: goodRecord(), similarity: 0.9},
		nil,
	)

	results := p.ProcessBatch(context.Background(), paths, 3)
	if len(results) != len(paths) {
		t.Fatalf("results = %d, want %d", len(results), len(paths))
	}

	var failed []Result
	seen := map[string]bool{}
	for _, res := range results {
		seen[res.SourcePath] = true
		if res.Status == constants.DocStatusFailed {
			failed = append(failed, res)
		}
	}
	if len(seen) != len(paths) {
		t.Errorf("duplicate or missing source paths: %v", seen)
	}
	if len(failed) != 1 || failed[0].SourcePath != paths[2] {
		t.Errorf("failed = %+v, want only the unsupported document", failed)
	}

	snap := p.Snapshot()
	if snap.Processed != 5 || snap.Successful != 4 || snap.Failed != 1 || snap.ManualReview != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.SuccessRate != 0.8 {
		t.Errorf("SuccessRate = %.2f, want 0.8", snap.SuccessRate)
	}
}

func TestProcessBatchManualReviewCounted(t *testing.T) {
	path := writePNG(t, t.TempDir(), "invoice.png")
	rec := goodRecord()
	rec.Flag("needs a human")
	p := newTestProcessor(
		fakeNormalizer{},
		fakeExtractor{res: ocr.Result{Confidence: 90}},
		fakeValidator{rec: rec, similarity: 0.9},
		nil,
	)

	p.ProcessBatch(context.Background(), []string{path}, 1)
	snap := p.Snapshot()
	if snap.ManualReview != 1 || snap.Successful != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.ManualReviewRate != 1.0 {
		t.Errorf("ManualReviewRate = %.2f", snap.ManualReviewRate)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	p := newTestProcessor(fakeNormalizer{}, fakeExtractor{}, fakeValidator{}, nil)
	snap := p.Snapshot()
	if snap.SuccessRate != 0 || snap.ManualReviewRate != 0 {
		t.Errorf("rates on empty stats: %+v", snap)
	}
}
