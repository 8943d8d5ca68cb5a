package privacy

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaskingStats describes how much of a text was redacted
type MaskingStats struct {
	OriginalLength int  `json:"originalLength"`
	MaskedLength   int  `json:"maskedLength"`
	PIIDetected    bool `json:"piiDetected"`
	MaskedCount    int  `json:"maskedCount"`
}

// MaskWithStats masks text like Mask and reports before/after lengths and
// the number of placeholders in the output.
func MaskWithStats(text string, opts MaskOptions) (string, MaskingStats) {
	masked := Mask(text, opts)
	return masked, statsFor(text, masked)
}

func statsFor(original, masked string) MaskingStats {
	return MaskingStats{
		OriginalLength: utf8.RuneCountInString(original),
		MaskedLength:   utf8.RuneCountInString(masked),
		PIIDetected:    masked != original,
		MaskedCount:    CountPlaceholders(masked),
	}
}

// Fields turns the stats into log fields. Only counts are logged, never text.
func (s MaskingStats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("original_length", s.OriginalLength),
		zap.Int("masked_length", s.MaskedLength),
		zap.Int("masked_count", s.MaskedCount),
		zap.Bool("pii_detected", s.PIIDetected),
	}
}
