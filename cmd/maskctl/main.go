package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd(&cli{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(app *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "maskctl",
		Short: "Mask personal information in journal text",
		Long: `maskctl runs the journal-sentinel masker from the command line.

Text is taken from the arguments, or from stdin when it is piped in.
Placeholders are highlighted when writing to a terminal.

Examples:
  maskctl mask "연락처: 010-1234-5678"
  cat entry.txt | maskctl mask --preserve-structure
  maskctl detect "홍 길동 만남"
  maskctl stats --no-names < entry.txt
  maskctl batch export.csv masked.parquet --workers 8`,
		Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:      true,
		PersistentPreRunE: app.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "path to configuration file")
	flags.BoolVar(&app.preserveStructure, "preserve-structure", false, "append the masked span length to placeholders")
	flags.BoolVar(&app.noNames, "no-names", false, "do not mask Korean names")
	flags.BoolVar(&app.noPaths, "no-paths", false, "do not mask file paths")
	flags.BoolVar(&app.noColor, "no-color", false, "never highlight placeholders")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "log masking details")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "mask [text...]",
			Short: "Print the masked text",
			RunE:  app.runMask,
		},
		&cobra.Command{
			Use:   "detect [text...]",
			Short: "Report whether the text contains personal information",
			Long: `detect prints "true" or "false". It checks every built-in category,
regardless of --no-names and --no-paths.`,
			RunE: app.runDetect,
		},
		&cobra.Command{
			Use:   "stats [text...]",
			Short: "Print masking statistics as JSON",
			RunE:  app.runStats,
		},
		app.batchCommand(),
	)

	return rootCmd
}
