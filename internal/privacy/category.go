package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

// Category identifies the kind of sensitive data a pattern detects
type Category string

const (
	CategoryEmail   Category = "EMAIL"
	CategoryPhone   Category = "PHONE"
	CategorySSN     Category = "SSN"
	CategoryCard    Category = "CARD"
	CategoryIP      Category = "IP"
	CategoryPath    Category = "PATH"
	CategoryAddress Category = "ADDRESS"
	CategoryName    Category = "NAME"
)

// Categories lists every built-in category in masking priority order
var Categories = []Category{
	CategorySSN,
	CategoryCard,
	CategoryPhone,
	CategoryEmail,
	CategoryIP,
	CategoryPath,
	CategoryAddress,
	CategoryName,
}

// placeholderPattern matches any placeholder token the masker can emit.
var placeholderPattern = regexp.MustCompile(
	`\[(?:EMAIL|PHONE|SSN|CARD|IP|PATH|ADDRESS|NAME)(?:_\d+)?\]`,
)

// Placeholder returns the token substituted for a masked span.
// With preserveStructure the rune length of the span is appended.
func (c Category) Placeholder(length int, preserveStructure bool) string {
	if preserveStructure {
		return fmt.Sprintf("[%s_%d]", c, length)
	}
	return "[" + string(c) + "]"
}

// IsBuiltin reports whether name is one of the eight built-in categories.
func IsBuiltin(name string) bool {
	upper := Category(strings.ToUpper(name))
	for _, c := range Categories {
		if c == upper {
			return true
		}
	}
	return false
}

// CountPlaceholders counts the built-in placeholder tokens present in text
func CountPlaceholders(text string) int {
	return len(placeholderPattern.FindAllStringIndex(text, -1))
}
