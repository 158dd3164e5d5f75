package rules

import (
	"strings"
	"testing"

	"github.com/invoicehub/invoice-rpa/internal/llm"
)

func cleanRecord() llm.InvoiceRecord {
	return llm.InvoiceRecord{
		TotalAmount:       1000,
		OCRConfidence:     85,
		AIValidationScore: 0.9,
	}
}

func TestApplyCleanRecordPasses(t *testing.T) {
	got := NewGate(0, 0, 0, 0).Apply(cleanRecord())
	if got.RequiresManualReview {
		t.Fatalf("clean record flagged: %v", got.ValidationNotes)
	}
	if len(got.ValidationNotes) != 0 {
		t.Errorf("notes on a clean record: %v", got.ValidationNotes)
	}
}

func TestApplyLowOCRConfidence(t *testing.T) {
	rec := cleanRecord()
	rec.OCRConfidence = 50

	got := NewGate(0, 0, 0, 0).Apply(rec)
	if !got.RequiresManualReview {
		t.Fatal("low OCR confidence must flag the record")
	}
	if len(got.ValidationNotes) != 1 || !strings.Contains(got.ValidationNotes[0], "low OCR confidence") {
		t.Errorf("notes = %v, want exactly the OCR note", got.ValidationNotes)
	}
}

func TestApplyAboveAutoApproveThreshold(t *testing.T) {
	rec := cleanRecord()
	rec.TotalAmount = 6000

	got := NewGate(0, 0, 0, 0).Apply(rec)
	if !got.RequiresManualReview {
		t.Fatal("amount above auto-approve threshold must flag the record")
	}
	if len(got.ValidationNotes) != 1 || !strings.Contains(got.ValidationNotes[0], "auto-approve threshold") {
		t.Errorf("notes = %v", got.ValidationNotes)
	}
}

func TestApplyAboveMaximumAmount(t *testing.T) {
	rec := cleanRecord()
	rec.TotalAmount = 150000

	got := NewGate(0, 0, 0, 0).Apply(rec)
	// Past the hard ceiling both amount checks fire independently.
	if len(got.ValidationNotes) != 2 {
		t.Fatalf("notes = %v, want both amount notes", got.ValidationNotes)
	}
	if !strings.Contains(got.ValidationNotes[1], "maximum invoice amount") {
		t.Errorf("notes = %v", got.ValidationNotes)
	}
}

func TestApplyLowAIScore(t *testing.T) {
	rec := cleanRecord()
	rec.AIValidationScore = 0.4

	got := NewGate(0, 0, 0, 0).Apply(rec)
	if !got.RequiresManualReview {
		t.Fatal("low AI score must flag the record")
	}
	if !strings.Contains(got.ValidationNotes[0], "low AI validation score") {
		t.Errorf("notes = %v", got.ValidationNotes)
	}
}

func TestApplyNeverClearsExistingFlags(t *testing.T) {
	rec := cleanRecord()
	rec.Flag("upstream schema problem")

	got := NewGate(0, 0, 0, 0).Apply(rec)
	if !got.RequiresManualReview {
		t.Fatal("existing review flag was cleared")
	}
	if len(got.ValidationNotes) != 1 || got.ValidationNotes[0] != "upstream schema problem" {
		t.Errorf("existing notes mangled: %v", got.ValidationNotes)
	}
}

func TestApplyCustomThresholds(t *testing.T) {
	g := NewGate(10000, 200000, 60, 0.5)
	rec := cleanRecord()
	rec.TotalAmount = 6000 // below the raised threshold
	rec.OCRConfidence = 65 // below the default, above the lowered one
	rec.AIValidationScore = 0.55

	if got := g.Apply(rec); got.RequiresManualReview {
		t.Errorf("record flagged despite custom thresholds: %v", got.ValidationNotes)
	}
}

func TestNewGateDefaults(t *testing.T) {
	g := NewGate(0, -1, 0, 0)
	if g.AutoApproveThreshold != 5000 || g.MaxInvoiceAmount != 100000 ||
		g.OCRConfidenceThreshold != 70 || g.MinAIScore != 0.7 {
		t.Errorf("defaults = %+v", g)
	}
}
