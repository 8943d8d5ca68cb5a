package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/raaihank/journal-sentinel/internal/batch"
	"github.com/raaihank/journal-sentinel/internal/config"
	"github.com/raaihank/journal-sentinel/internal/logger"
	"github.com/raaihank/journal-sentinel/internal/privacy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNoInput = errors.New("no input: pass text as arguments or pipe it on stdin")

// cli holds the state shared by every subcommand
type cli struct {
	configPath        string
	preserveStructure bool
	noNames           bool
	noPaths           bool
	noColor           bool
	verbose           bool

	config   *config.Config
	log      *logger.Logger
	detector *privacy.Detector
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.config = cfg

	c.log = logger.Nop()
	if c.verbose {
		c.log, err = logger.New(logger.Config{Level: "debug", Format: "console"})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	c.detector, err = privacy.New(cfg.Privacy, c.log.WithComponent("privacy"))
	return err
}

// options merges the command line switches into the configured defaults
func (c *cli) options() privacy.MaskOptions {
	opts := c.detector.Options()
	if c.preserveStructure {
		opts.PreserveStructure = true
	}
	if c.noNames {
		opts.DisableNameMasking = true
	}
	if c.noPaths {
		opts.DisablePathMasking = true
	}
	return opts
}

// input joins the arguments, or reads stdin when it is not a terminal
func (c *cli) input(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		return "", errNoInput
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (c *cli) runMask(cmd *cobra.Command, args []string) error {
	text, err := c.input(cmd, args)
	if err != nil {
		return err
	}

	result := c.detector.ProcessTextWithOptions(text, c.options())
	out, colored := c.output(cmd)
	fmt.Fprintln(out, highlight(result.MaskedText, colored))
	return nil
}

func (c *cli) runDetect(cmd *cobra.Command, args []string) error {
	text, err := c.input(cmd, args)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), c.detector.Contains(text))
	return nil
}

type statsOutput struct {
	Stats    privacy.MaskingStats `json:"stats"`
	Findings []privacy.Finding    `json:"findings"`
}

func (c *cli) runStats(cmd *cobra.Command, args []string) error {
	text, err := c.input(cmd, args)
	if err != nil {
		return err
	}

	result := c.detector.ProcessTextWithOptions(text, c.options())
	data, err := json.MarshalIndent(statsOutput{Stats: result.Stats, Findings: result.Findings}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func (c *cli) batchCommand() *cobra.Command {
	var (
		workers int
		format  string
	)

	cmd := &cobra.Command{
		Use:   "batch <input> <output>",
		Short: "Mask a journal export (CSV, JSON lines or Parquet)",
		Long: `batch masks every entry of an export file. Entries need a "text" field;
"id" and "date" are carried over. The output format follows the output file
extension (.jsonl or .parquet), falling back to --format.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.config.Batch
			if workers > 0 {
				cfg.WorkerCount = workers
			}
			if format != "" {
				f, ok := batch.ParseFileFormat(format)
				if !ok || f == batch.FormatCSV {
					return fmt.Errorf("unsupported output format: %s", format)
				}
				cfg.OutputFormat = string(f)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return c.runBatch(ctx, cmd.OutOrStdout(), cfg, args[0], args[1])
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of worker goroutines (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "output format when the extension is unknown (jsonl or parquet)")
	return cmd
}

func (c *cli) runBatch(ctx context.Context, out io.Writer, cfg config.BatchConfig, inPath, outPath string) error {
	pipeline := batch.NewPipeline(c.detector, c.options(), cfg, c.log.Logger)

	result, err := pipeline.ProcessFile(ctx, inPath, outPath)
	if err != nil {
		c.log.Error("Batch masking failed", zap.String("input", inPath), zap.Error(err))
		return err
	}

	fmt.Fprintf(out, "%d entries: %d masked, %d with PII, %d failed, %d skipped, %d spans in %s\n",
		result.Total, result.Masked, result.WithPII, result.Failed, result.Skipped,
		result.MaskedSpans, result.Duration.Round(time.Millisecond))
	return nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
