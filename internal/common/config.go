package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	OCR      OCRConfig
	AI       AIConfig
	Rules    RulesConfig
	Pipeline PipelineConfig
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Language    string // default "ita+eng"
	DPI         int    // rasterization DPI for PDF pages, default 300
	PSM         int    // page segmentation mode; 6 = uniform block of text
	OEM         int    // 3 = default engine
	TessdataDir string
	MaxWidth    int // resize cap for the normalizer, default 3000
}

// AIConfig holds structuring-collaborator configuration
type AIConfig struct {
	Endpoint    string // Azure OpenAI resource endpoint
	APIKey      string
	Deployment  string // e.g. "gpt-4"
	APIVersion  string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	MaxRetries   int           // attempts, default 3
	RetryBackoff time.Duration // initial backoff, doubles per attempt
	RetryCap     time.Duration // backoff ceiling
}

// RulesConfig holds business-rule thresholds
type RulesConfig struct {
	VATRate                float64
	MaxInvoiceAmount       float64
	AutoApproveThreshold   float64
	OCRConfidenceThreshold float64
	MinAIScore             float64
	MinSemanticSimilarity  float64
}

// PipelineConfig holds batch-execution configuration
type PipelineConfig struct {
	BatchSize       int // worker count derives from this (BatchSize/3, min 1)
	DocumentTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		OCR: OCRConfig{
			Tesseract:   getEnv("TESSERACT_PATH", "tesseract"),
			Language:    getEnv("TESSERACT_LANG", "ita+eng"),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			PSM:         getEnvAsInt("OCR_PSM", 6),
			OEM:         getEnvAsInt("OCR_OEM", 3),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			MaxWidth:    getEnvAsInt("MAX_IMAGE_WIDTH", 3000),
		},
		AI: AIConfig{
			Endpoint:     getEnv("AZURE_OPENAI_ENDPOINT", ""),
			APIKey:       getEnv("AZURE_OPENAI_KEY", ""),
			Deployment:   getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4"),
			APIVersion:   getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
			Temperature:  getEnvAsFloat32("AZURE_OPENAI_TEMPERATURE", 0.1),
			MaxTokens:    getEnvAsInt("AZURE_OPENAI_MAX_TOKENS", 2000),
			Timeout:      getEnvAsDuration("AZURE_OPENAI_TIMEOUT", 45*time.Second),
			MaxRetries:   getEnvAsInt("MAX_RETRIES", 3),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 2*time.Second),
			RetryCap:     getEnvAsDuration("RETRY_BACKOFF_CAP", 10*time.Second),
		},
		Rules: RulesConfig{
			VATRate:                getEnvAsFloat64("VAT_RATE", 0.22),
			MaxInvoiceAmount:       getEnvAsFloat64("MAX_INVOICE_AMOUNT", 100000.0),
			AutoApproveThreshold:   getEnvAsFloat64("AUTO_APPROVE_THRESHOLD", 5000.0),
			OCRConfidenceThreshold: getEnvAsFloat64("OCR_CONFIDENCE_THRESHOLD", 70.0),
			MinAIScore:             getEnvAsFloat64("MIN_AI_SCORE", 0.7),
			MinSemanticSimilarity:  getEnvAsFloat64("MIN_SEMANTIC_SIMILARITY", 0.6),
		},
		Pipeline: PipelineConfig{
			BatchSize:       getEnvAsInt("BATCH_SIZE", 10),
			DocumentTimeout: getEnvAsDuration("DOCUMENT_TIMEOUT", 3*time.Minute),
		},
	}
}

// Workers derives the worker-pool size from the batch-size setting.
func (c *Config) Workers() int {
	w := c.Pipeline.BatchSize / 3
	if w < 1 {
		w = 1
	}
	return w
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.AI.Endpoint == "" {
		return NewAppError("CONFIG_ERROR", "AZURE_OPENAI_ENDPOINT is required", ErrConfiguration)
	}
	if c.AI.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "AZURE_OPENAI_KEY is required", ErrConfiguration)
	}
	if c.Rules.VATRate < 0 || c.Rules.VATRate > 1 {
		return NewAppError("CONFIG_ERROR", "VAT_RATE must be in [0,1]", ErrConfiguration)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
