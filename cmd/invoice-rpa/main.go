package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/invoicehub/invoice-rpa/constants"
	"github.com/invoicehub/invoice-rpa/internal/common"
	"github.com/invoicehub/invoice-rpa/internal/convert"
	"github.com/invoicehub/invoice-rpa/internal/fields"
	imagingx "github.com/invoicehub/invoice-rpa/internal/imaging"
	"github.com/invoicehub/invoice-rpa/internal/intake"
	"github.com/invoicehub/invoice-rpa/internal/llm"
	"github.com/invoicehub/invoice-rpa/internal/llm/openai"
	"github.com/invoicehub/invoice-rpa/internal/ocr"
	"github.com/invoicehub/invoice-rpa/internal/pipeline"
	"github.com/invoicehub/invoice-rpa/internal/rules"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of invoice files to process (required)")
		workers = flag.Int("workers", 0, "worker pool size (default: BATCH_SIZE/3)")
		verbose = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	paths, scanStats, err := intake.ScanDirectory(*dir)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("intake.scan.done", "dir", *dir, "scanned", scanStats.Scanned, "matched", scanStats.Matched)
	if len(paths) == 0 {
		logger.Info("no invoice files found", "dir", *dir)
		return
	}

	proc := buildProcessor(cfg, logger)

	n := *workers
	if n <= 0 {
		n = cfg.Workers()
	}
	results := proc.ProcessBatch(context.Background(), paths, n)

	for _, res := range results {
		if res.Status == constants.DocStatusFailed {
			logger.Error("document failed", "path", res.SourcePath, "error", res.Err)
		}
	}
	snap := proc.Snapshot()
	logger.Info("batch summary",
		"processed", snap.Processed,
		"successful", snap.Successful,
		"manual_review", snap.ManualReview,
		"failed", snap.Failed,
		"success_rate", fmt.Sprintf("%.1f%%", snap.SuccessRate*100),
		"manual_review_rate", fmt.Sprintf("%.1f%%", snap.ManualReviewRate*100),
	)
}

func buildProcessor(cfg *common.Config, logger *slog.Logger) *pipeline.Processor {
	normalizer := imagingx.NewNormalizer(imagingx.Config{MaxWidth: cfg.OCR.MaxWidth}, logger)
	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Language:    cfg.OCR.Language,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
		TessdataDir: cfg.OCR.TessdataDir,
	}, logger)
	fieldExtractor := fields.NewExtractor(logger)
	completer := openai.NewClient(openai.Config{
		Endpoint:    cfg.AI.Endpoint,
		APIKey:      cfg.AI.APIKey,
		Deployment:  cfg.AI.Deployment,
		APIVersion:  cfg.AI.APIVersion,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	}, logger)
	validator := llm.NewValidator(completer, llm.Config{
		VATRate:      cfg.Rules.VATRate,
		MaxRetries:   cfg.AI.MaxRetries,
		RetryBackoff: cfg.AI.RetryBackoff,
		RetryCap:     cfg.AI.RetryCap,
	}, logger)
	gate := rules.NewGate(
		cfg.Rules.AutoApproveThreshold,
		cfg.Rules.MaxInvoiceAmount,
		cfg.Rules.OCRConfidenceThreshold,
		cfg.Rules.MinAIScore,
	)
	renderer := convert.NewPDFRenderer(logger)

	return pipeline.NewProcessor(normalizer, extractor, fieldExtractor, validator, gate, renderer, pipeline.Config{
		DPI:                   cfg.OCR.DPI,
		DocumentTimeout:       cfg.Pipeline.DocumentTimeout,
		MinSemanticSimilarity: cfg.Rules.MinSemanticSimilarity,
	}, logger)
}
