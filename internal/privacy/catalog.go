package privacy

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule is one entry of the masking pipeline: a category, the expression that
// finds candidate spans, and an optional boundary check on the runes around a
// candidate. Rules hold no matching state and are safe for concurrent use.
type Rule struct {
	Category Category
	pattern  *regexp.Regexp
	accept   func(text string, start, end int) bool
}

// Order matters: specific digit shapes first, heuristic Hangul patterns last.
var catalog = []Rule{
	{
		Category: CategorySSN,
		pattern:  regexp.MustCompile(`\b\d{6}-?\d{7}\b`),
	},
	{
		Category: CategoryCard,
		pattern:  regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
	},
	{
		Category: CategoryPhone,
		pattern:  regexp.MustCompile(`(?:\(\d{2,3}\)\s?|\b\d{2,3}[-\s]?)\d{3,4}[-\s]?\d{4}\b`),
	},
	{
		Category: CategoryEmail,
		pattern:  regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	},
	{
		Category: CategoryIP,
		pattern:  regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`),
	},
	{
		Category: CategoryPath,
		pattern:  regexp.MustCompile(`(?:[A-Za-z]:\\|~/|/)[\p{L}\p{N}_.\-]+(?:[/\\][\p{L}\p{N}_.\-]+)*[/\\]?`),
		accept:   pathBoundary,
	},
	{
		Category: CategoryAddress,
		pattern:  regexp.MustCompile(`[가-힣]+(?:시|도|군|구)\s+[가-힣]+(?:시|군|구|동|읍|면)(?:[ 가-힣\d\-]*[가-힣\d])?`),
	},
	{
		Category: CategoryName,
		pattern:  regexp.MustCompile(`[가-힣]{1,2}\s[가-힣]{2,3}`),
		accept:   hangulBoundary,
	},
}

// Catalog returns a copy of the built-in rules in priority order.
func Catalog() []Rule {
	rules := make([]Rule, len(catalog))
	copy(rules, catalog)
	return rules
}

// FindAll returns the byte offsets of every non-overlapping match in text.
func (r Rule) FindAll(text string) [][]int {
	if r.accept == nil {
		return r.pattern.FindAllStringIndex(text, -1)
	}

	var spans [][]int
	pos := 0
	for pos < len(text) {
		loc := r.pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !r.accept(text, start, end) {
			// retry one rune later so a rejected candidate does not hide
			// an overlapping one that satisfies the boundary
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + size
			continue
		}
		spans = append(spans, []int{start, end})
		pos = end
	}
	return spans
}

// Matches reports whether the rule matches anywhere in text.
func (r Rule) Matches(text string) bool {
	if r.accept == nil {
		return r.pattern.MatchString(text)
	}
	return len(r.FindAll(text)) > 0
}

// Replace substitutes every match with the rule's placeholder and returns
// the new text together with the number of replaced spans.
func (r Rule) Replace(text string, preserveStructure bool) (string, int) {
	spans := r.FindAll(text)
	if len(spans) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, span := range spans {
		b.WriteString(text[last:span[0]])
		length := utf8.RuneCountInString(text[span[0]:span[1]])
		b.WriteString(r.Category.Placeholder(length, preserveStructure))
		last = span[1]
	}
	b.WriteString(text[last:])

	return b.String(), len(spans)
}

func isHangul(r rune) bool {
	return r >= '가' && r <= '힣'
}

// hangulBoundary rejects spans glued to further Hangul on either side.
func hangulBoundary(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isHangul(prev) {
			return false
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isHangul(next) {
			return false
		}
	}
	return true
}

// pathBoundary rejects spans that continue a word, a number, a URL or a
// placeholder: the rune before the span may not be a letter, a digit, a
// slash, a backslash or ']'.
func pathBoundary(text string, start, _ int) bool {
	if start == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
		return false
	}
	return !strings.ContainsRune(`/\]`, prev)
}
