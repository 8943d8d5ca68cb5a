package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raaihank/journal-sentinel/internal/config"
	"github.com/raaihank/journal-sentinel/internal/privacy"
	"go.uber.org/zap"
)

// Masker is the part of the privacy detector the pipeline needs
type Masker interface {
	ProcessTextWithOptions(text string, opts privacy.MaskOptions) privacy.ProcessResult
}

// Pipeline masks journal exports in bulk
type Pipeline struct {
	masker  Masker
	options privacy.MaskOptions
	config  config.BatchConfig
	logger  *zap.Logger
}

// NewPipeline creates a new batch pipeline
func NewPipeline(masker Masker, opts privacy.MaskOptions, cfg config.BatchConfig, logger *zap.Logger) *Pipeline {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Pipeline{
		masker:  masker,
		options: opts,
		config:  cfg,
		logger:  logger,
	}
}

// ProcessFile masks the export at inPath and writes it to outPath. Formats
// are taken from the file extensions; the output falls back to the
// configured format when its extension is unknown.
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string) (*Result, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	outFormat := FileFormat(p.config.OutputFormat)
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".parquet":
		outFormat = FormatParquet
	case ".jsonl", ".ndjson", ".json":
		outFormat = FormatJSONL
	}

	result, err := p.Process(ctx, in, DetectFileFormat(inPath), out, outFormat)
	if err != nil {
		return result, err
	}
	return result, out.Sync()
}

// Process reads entries in inFormat, masks them with a worker pool and
// writes them in outFormat, preserving input order.
func (p *Pipeline) Process(ctx context.Context, r io.Reader, inFormat FileFormat, w io.Writer, outFormat FileFormat) (*Result, error) {
	start := time.Now()

	p.logger.Info("Starting batch masking",
		zap.String("input_format", string(inFormat)),
		zap.String("output_format", string(outFormat)),
		zap.Int("workers", p.config.WorkerCount))

	read, err := readEntries(r, inFormat)
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: read.failed}
	entries := read.entries
	if p.config.SkipEmpty {
		kept := entries[:0]
		for _, e := range entries {
			if strings.TrimSpace(e.Text) == "" {
				result.Skipped++
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
	}
	result.Total = int64(len(entries)) + result.Skipped + result.Failed

	masked, err := p.maskAll(ctx, entries, result)
	if err != nil {
		return result, err
	}

	if err := writeEntries(w, outFormat, masked); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch masking completed",
		zap.Int64("total", result.Total),
		zap.Int64("masked", result.Masked),
		zap.Int64("with_pii", result.WithPII),
		zap.Int64("failed", result.Failed),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("masked_spans", result.MaskedSpans),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (p *Pipeline) maskAll(ctx context.Context, entries []Entry, result *Result) ([]MaskedEntry, error) {
	out := make([]MaskedEntry, len(entries))
	jobs := make(chan int)

	var (
		wg      sync.WaitGroup
		masked  atomic.Int64
		withPII atomic.Int64
		spans   atomic.Int64
	)

	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				e := entries[idx]
				res := p.masker.ProcessTextWithOptions(e.Text, p.options)
				out[idx] = MaskedEntry{
					ID:             e.ID,
					Date:           e.Date,
					Text:           res.MaskedText,
					PIIDetected:    res.Stats.PIIDetected,
					MaskedCount:    int64(res.TotalMasked()),
					OriginalLength: int64(res.Stats.OriginalLength),
					MaskedLength:   int64(res.Stats.MaskedLength),
				}
				masked.Add(1)
				spans.Add(int64(res.TotalMasked()))
				if res.Stats.PIIDetected {
					withPII.Add(1)
				}
			}
		}()
	}

	var cancelled error
feed:
	for idx := range entries {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	result.Masked = masked.Load()
	result.WithPII = withPII.Load()
	result.MaskedSpans = spans.Load()

	if cancelled != nil {
		p.logger.Warn("Batch masking cancelled", zap.Int64("masked", result.Masked))
		return nil, fmt.Errorf("batch masking cancelled: %w", cancelled)
	}
	return out, nil
}
