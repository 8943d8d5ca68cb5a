package telemetry

import (
	"context"

	"github.com/raaihank/journal-sentinel/internal/privacy"
)

// Recorder keeps aggregate redaction counters. Implementations never see
// original or masked text, only counts.
type Recorder interface {
	Record(ctx context.Context, sample Sample) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Sample is the outcome of one masking operation
type Sample struct {
	Source         string         `json:"source"`
	Provider       string         `json:"provider,omitempty"`
	PIIDetected    bool           `json:"piiDetected"`
	MaskedSpans    int            `json:"maskedSpans"`
	OriginalLength int            `json:"originalLength"`
	MaskedLength   int            `json:"maskedLength"`
	Categories     map[string]int `json:"categories,omitempty"`
}

// SampleFrom builds a sample from a detector result
func SampleFrom(source, provider string, result privacy.ProcessResult) Sample {
	categories := make(map[string]int, len(result.Findings))
	for _, f := range result.Findings {
		categories[f.EntityType] += f.Count
	}
	return Sample{
		Source:         source,
		Provider:       provider,
		PIIDetected:    result.Stats.PIIDetected,
		MaskedSpans:    result.TotalMasked(),
		OriginalLength: result.Stats.OriginalLength,
		MaskedLength:   result.Stats.MaskedLength,
		Categories:     categories,
	}
}

// Snapshot is a point-in-time view of the counters
type Snapshot struct {
	Backend       string           `json:"backend"`
	Requests      int64            `json:"requests"`
	PIIRequests   int64            `json:"piiRequests"`
	MaskedSpans   int64            `json:"maskedSpans"`
	OriginalChars int64            `json:"originalChars"`
	MaskedChars   int64            `json:"maskedChars"`
	Categories    map[string]int64 `json:"categories"`
}

// Counter field names shared by every backend
const (
	fieldRequests      = "requests"
	fieldPIIRequests   = "pii_requests"
	fieldMaskedSpans   = "masked_spans"
	fieldOriginalChars = "original_chars"
	fieldMaskedChars   = "masked_chars"
	categoryPrefix     = "category:"
)
