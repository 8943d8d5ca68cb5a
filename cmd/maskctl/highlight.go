package main

import (
	"io"
	"os"
	"regexp"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
)

// Built-in and custom placeholders share the [NAME] / [NAME_N] shape
var placeholderToken = regexp.MustCompile(`\[[A-Z][A-Z0-9_]*\]`)

var placeholderColor = color.New(color.FgYellow, color.Bold)

// output returns the writer for masked text and whether it should be
// colored. Color is used only on real terminals.
func (c *cli) output(cmd *cobra.Command) (io.Writer, bool) {
	out := cmd.OutOrStdout()
	f, ok := out.(*os.File)
	if !ok || c.noColor || os.Getenv("NO_COLOR") != "" || !isTerminal(f) {
		return out, false
	}
	if f == os.Stdout {
		return colorable.NewColorableStdout(), true
	}
	return colorable.NewColorable(f), true
}

// highlight wraps every placeholder in text with the placeholder color
func highlight(text string, colored bool) string {
	if !colored {
		return text
	}
	placeholderColor.EnableColor()
	return placeholderToken.ReplaceAllStringFunc(text, func(token string) string {
		return placeholderColor.Sprint(token)
	})
}
