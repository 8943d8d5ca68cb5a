package privacy

import "strings"

// MaskOptions controls optional masking behavior. The zero value masks every
// category with bare placeholders.
type MaskOptions struct {
	// PreserveStructure emits [CATEGORY_N] where N is the rune length of the
	// original span.
	PreserveStructure bool `json:"preserveStructure" yaml:"preserve_structure" mapstructure:"preserve_structure"`
	// DisableNameMasking skips the NAME heuristic.
	DisableNameMasking bool `json:"disableNameMasking" yaml:"disable_name_masking" mapstructure:"disable_name_masking"`
	// DisablePathMasking skips the PATH pattern.
	DisablePathMasking bool `json:"disablePathMasking" yaml:"disable_path_masking" mapstructure:"disable_path_masking"`
}

func (o MaskOptions) skips(c Category) bool {
	switch c {
	case CategoryName:
		return o.DisableNameMasking
	case CategoryPath:
		return o.DisablePathMasking
	}
	return false
}

// Mask replaces every detected PII span in text with a category placeholder.
// Rules run in priority order and each one sees the output of the previous
// one. Empty and whitespace-only input is returned unchanged.
func Mask(text string, opts MaskOptions) string {
	return mask(text, opts, nil)
}

// mask runs the pipeline and reports per-category replacement counts to
// visit when it is non-nil.
func mask(text string, opts MaskOptions, visit func(Category, int)) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	masked := text
	for _, rule := range catalog {
		if opts.skips(rule.Category) {
			continue
		}
		var n int
		masked, n = rule.Replace(masked, opts.PreserveStructure)
		if n > 0 && visit != nil {
			visit(rule.Category, n)
		}
	}
	return masked
}

// ContainsPII reports whether any built-in rule matches text. Each rule is
// evaluated against the original text and no rule can be disabled here, so
// detection is deliberately broader than a configured Mask.
func ContainsPII(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, rule := range catalog {
		if rule.Matches(text) {
			return true
		}
	}
	return false
}
