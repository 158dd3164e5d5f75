package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/invoicehub/invoice-rpa/internal/common"
)

// Config for the structuring validator.
type Config struct {
	VATRate float64 // standard rate quoted in the prompt, default 0.22

	MaxRetries   int           // total attempts, default 3
	RetryBackoff time.Duration // initial delay, doubles per attempt, default 2s
	RetryCap     time.Duration // delay ceiling, default 10s
}

// Validator sends OCR output to the structuring collaborator and defends the
// pipeline against whatever comes back: transient call failures are retried,
// schema or invariant failures fall back to a flagged lenient record.
type Validator struct {
	completer Completer
	cfg       Config
	logger    *slog.Logger
}

func NewValidator(completer Completer, cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VATRate == 0 {
		cfg.VATRate = defaultVATRate
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 10 * time.Second
	}
	return &Validator{completer: completer, cfg: cfg, logger: logger}
}

// Validate structures and validates one document's OCR output. The returned
// record always carries the input OCR confidence; a schema-invalid response
// yields a lenient record flagged for manual review, never an error. Only an
// exhausted transient failure (or context expiry) errors out.
func (v *Validator) Validate(ctx context.Context, ocrText string, candidates map[string]string, ocrConfidence float64) (InvoiceRecord, error) {
	start := time.Now()
	log := v.logger.With("req_id", uuid.New().String())
	if tid := common.TraceIDFromContext(ctx); tid != "" {
		log = log.With("trace_id", tid)
	}
	log.Info("llm.validate.start", "text_len", len(ocrText), "candidates", len(candidates))

	raw, err := v.completeWithRetry(ctx, systemPrompt(v.cfg.VATRate), userPayload(ocrText, candidates), log)
	if err != nil {
		return InvoiceRecord{}, fmt.Errorf("structuring call: %w", err)
	}

	rec, err := ParseRecord(raw)
	if err != nil {
		if !errors.Is(err, common.ErrSchemaValidation) {
			return InvoiceRecord{}, err
		}
		log.Warn("llm.validate.schema_failed",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		rec = ParseLenient(raw, err)
	}
	rec.OCRConfidence = ocrConfidence

	log.Info("llm.validate.ok",
		"invoice_number", rec.InvoiceNumber,
		"total_amount", rec.TotalAmount,
		"ai_score", rec.AIValidationScore,
		"needs_review", rec.RequiresManualReview,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// SemanticSimilarity asks the collaborator to score coherence between the
// leading OCR text and the structured record, in [0,1]. An unparseable score
// degrades to 0.5: a deliberately conservative midpoint, not a silent pass.
func (v *Validator) SemanticSimilarity(ctx context.Context, ocrText string, rec InvoiceRecord) (float64, error) {
	raw, err := v.completer.Complete(ctx, "", similarityPrompt(ocrText, rec))
	if err != nil {
		return 0, fmt.Errorf("similarity call: %w", err)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		v.logger.Warn("llm.similarity.unparsed", "raw", truncate(raw, 64))
		return 0.5, nil
	}
	return clamp01(score), nil
}

// completeWithRetry is the explicit retry loop: up to MaxRetries attempts,
// exponential backoff, transient call failures only. Schema problems are not
// the transport's fault and never reach this loop.
func (v *Validator) completeWithRetry(ctx context.Context, system, user string, log *slog.Logger) (string, error) {
	delay := v.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		out, err := v.completer.Complete(ctx, system, user)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, common.ErrTransientService) || attempt >= v.cfg.MaxRetries {
			return "", err
		}
		log.Warn("llm.complete.retry",
			"attempt", attempt, "delay", delay.String(), "error", err,
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > v.cfg.RetryCap {
			delay = v.cfg.RetryCap
		}
	}
}

func systemPrompt(vatRate float64) string {
	return fmt.Sprintf(`You are an expert accountant specialized in analyzing and validating Italian invoices.

Your task:
1. Analyze the OCR text extracted from an invoice
2. Validate and correct the automatically extracted fields
3. Identify inconsistencies or errors
4. Return structured data as JSON

VALIDATION RULES:

Invoice number: must be present; typical format is a progressive number with year (e.g. 2024/001, FT-2024-123).
Dates: ISO format YYYY-MM-DD; the invoice date must be valid and not in the future; the due date must follow the invoice date.
VAT ids: exactly 11 digits, numbers only, strip spaces and separators.
Amounts: subtotal is the pre-VAT amount; vat_amount must equal subtotal * vat_rate; total_amount must equal subtotal + vat_amount; the standard Italian VAT rate is %.2f; rounding tolerance is 0.01.
Consistency: all amounts must be mathematically coherent; report any discrepancy in validation_notes.

Required JSON output:
{
  "invoice_number": "string",
  "invoice_date": "YYYY-MM-DD",
  "supplier_name": "string",
  "supplier_vat": "11 digits",
  "customer_name": "string",
  "customer_vat": "11 digits",
  "subtotal": number,
  "vat_rate": number (default %.2f),
  "vat_amount": number,
  "total_amount": number,
  "line_items": [{"description": "string", "quantity": number, "unit_price": number, "total": number}],
  "payment_terms": "string",
  "due_date": "YYYY-MM-DD" (optional),
  "currency": "EUR",
  "confidence_score": number (0-1, your confidence in the validation),
  "validation_notes": ["notes or corrections applied"],
  "requires_manual_review": boolean (true when in significant doubt)
}

IMPORTANT:
- Omit optional fields you cannot determine; never invent values.
- If data looks wrong but you are unsure, note it in validation_notes.
- If confidence_score < 0.7, set requires_manual_review = true.
- Return ONLY JSON.`, vatRate, vatRate)
}

func userPayload(ocrText string, candidates map[string]string) string {
	fieldsJSON, _ := json.MarshalIndent(candidates, "", "  ")
	var b strings.Builder
	b.WriteString("Validate this invoice extracted via OCR.\n\nFULL OCR TEXT:\n")
	b.WriteString(ocrText)
	b.WriteString("\n\nAUTOMATICALLY EXTRACTED FIELDS:\n")
	b.Write(fieldsJSON)
	b.WriteString("\n\nAnalyze the text, validate the extracted fields, correct any errors and return the validated JSON.\n")
	return b.String()
}

// similarityPrompt compares the first portion of OCR text with the record
// summary and asks for a bare 0..1 score.
func similarityPrompt(ocrText string, rec InvoiceRecord) string {
	const maxExcerpt = 1000
	if len(ocrText) > maxExcerpt {
		ocrText = ocrText[:maxExcerpt]
	}
	return fmt.Sprintf(`Compare the original OCR text with the extracted data and rate their coherence.

ORIGINAL TEXT:
%s

EXTRACTED DATA:
Number: %s
Date: %s
Supplier: %s
Customer: %s
Total: %.2f %s

Reply with a coherence score from 0 to 1, where:
- 1.0 = data fully coherent with the text
- 0.5 = some minor discrepancies
- 0.0 = data completely incoherent

Return ONLY the number (e.g. 0.85)`,
		ocrText,
		rec.InvoiceNumber, rec.InvoiceDate,
		rec.SupplierName, rec.CustomerName,
		rec.TotalAmount, rec.Currency,
	)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
