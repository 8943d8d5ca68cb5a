package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Entry is one journal entry of an export
type Entry struct {
	ID   string `parquet:"id" json:"id"`
	Date string `parquet:"date" json:"date"`
	Text string `parquet:"text" json:"text"`
}

// MaskedEntry is an entry after masking, with its redaction counts
type MaskedEntry struct {
	ID             string `parquet:"id" json:"id"`
	Date           string `parquet:"date" json:"date"`
	Text           string `parquet:"text" json:"text"`
	PIIDetected    bool   `parquet:"pii_detected" json:"piiDetected"`
	MaskedCount    int64  `parquet:"masked_count" json:"maskedCount"`
	OriginalLength int64  `parquet:"original_length" json:"originalLength"`
	MaskedLength   int64  `parquet:"masked_length" json:"maskedLength"`
}

// Result summarizes a pipeline run
type Result struct {
	Total       int64         `json:"total"`
	Masked      int64         `json:"masked"`
	WithPII     int64         `json:"withPii"`
	Failed      int64         `json:"failed"`
	Skipped     int64         `json:"skipped"`
	MaskedSpans int64         `json:"maskedSpans"`
	Duration    time.Duration `json:"duration"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatJSONL   FileFormat = "jsonl"
	FormatParquet FileFormat = "parquet"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	default:
		return FormatJSONL
	}
}

// ParseFileFormat validates a format name given on the command line or in
// config.
func ParseFileFormat(name string) (FileFormat, bool) {
	switch f := FileFormat(strings.ToLower(name)); f {
	case FormatCSV, FormatJSONL, FormatParquet:
		return f, true
	}
	return "", false
}
