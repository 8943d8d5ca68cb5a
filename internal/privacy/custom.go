package privacy

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single custom rule evaluation
const DefaultMatchTimeout = 100 * time.Millisecond

var customNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// CustomRule is a user supplied pattern applied after the built-in catalog.
// Patterns use .NET-style syntax so lookaround is available; a match timeout
// guards against catastrophic backtracking.
type CustomRule struct {
	Category Category
	re       *regexp2.Regexp
}

// CompileCustomRule validates name and compiles pattern.
func CompileCustomRule(name, pattern string, timeout time.Duration) (*CustomRule, error) {
	if !customNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid custom rule name %q", name)
	}
	if IsBuiltin(name) {
		return nil, fmt.Errorf("custom rule %q clashes with a built-in category", name)
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("custom rule %q has an empty pattern", name)
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("failed to compile custom rule %q: %w", name, err)
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	re.MatchTimeout = timeout

	return &CustomRule{
		Category: Category(strings.ToUpper(name)),
		re:       re,
	}, nil
}

// Replace masks every match of the rule. On timeout the input is returned
// unchanged along with the error.
func (c *CustomRule) Replace(text string, preserveStructure bool) (string, int, error) {
	count := 0
	out, err := c.re.ReplaceFunc(text, func(m regexp2.Match) string {
		count++
		return c.Category.Placeholder(utf8.RuneCountInString(m.String()), preserveStructure)
	}, -1, -1)
	if err != nil {
		return text, 0, fmt.Errorf("custom rule %s: %w", c.Category, err)
	}
	return out, count, nil
}
