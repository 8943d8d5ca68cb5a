package privacy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/raaihank/journal-sentinel/internal/config"
	"github.com/raaihank/journal-sentinel/internal/logger"
	"go.uber.org/zap"
)

var authHeaders = []string{"authorization", "x-api-key", "x-auth-token", "bearer"}

// Detector applies the masking pipeline with configured defaults and any
// custom rules. It is safe for concurrent use; Reload swaps the settings.
type Detector struct {
	mu          sync.RWMutex
	config      config.PrivacyConfig
	options     MaskOptions
	customRules []*CustomRule
	logger      *logger.Logger
}

// New creates a new PII detector instance
func New(cfg config.PrivacyConfig, log *logger.Logger) (*Detector, error) {
	d := &Detector{logger: log}
	if err := d.Reload(cfg); err != nil {
		return nil, err
	}

	log.Info("Privacy detector initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("builtin_rules", len(catalog)),
		zap.Int("custom_rules", len(cfg.CustomRules)),
		zap.Bool("preserve_structure", cfg.PreserveStructure),
		zap.Bool("name_masking", !cfg.DisableNameMasking),
		zap.Bool("path_masking", !cfg.DisablePathMasking),
	)

	return d, nil
}

// Reload applies a new privacy configuration. On error the previous
// configuration stays in effect.
func (d *Detector) Reload(cfg config.PrivacyConfig) error {
	rules := make([]*CustomRule, 0, len(cfg.CustomRules))
	seen := make(map[Category]bool)
	for _, rc := range cfg.CustomRules {
		rule, err := CompileCustomRule(rc.Name, rc.Pattern, cfg.MatchTimeout)
		if err != nil {
			return fmt.Errorf("failed to configure custom rules: %w", err)
		}
		if seen[rule.Category] {
			return fmt.Errorf("duplicate custom rule: %s", rc.Name)
		}
		seen[rule.Category] = true
		rules = append(rules, rule)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	d.customRules = rules
	d.options = MaskOptions{
		PreserveStructure:  cfg.PreserveStructure,
		DisableNameMasking: cfg.DisableNameMasking,
		DisablePathMasking: cfg.DisablePathMasking,
	}
	return nil
}

// Options returns the configured default mask options
func (d *Detector) Options() MaskOptions {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.options
}

// Enabled reports whether masking is switched on
func (d *Detector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Enabled
}

// ProcessText masks text with the configured default options
func (d *Detector) ProcessText(text string) ProcessResult {
	return d.ProcessTextWithOptions(text, d.Options())
}

// ProcessTextWithOptions masks text with explicit options, then applies the
// custom rules.
func (d *Detector) ProcessTextWithOptions(text string, opts MaskOptions) ProcessResult {
	d.mu.RLock()
	enabled := d.config.Enabled
	customRules := d.customRules
	d.mu.RUnlock()

	if !enabled {
		return ProcessResult{
			MaskedText: text,
			Findings:   []Finding{},
			Stats:      statsFor(text, text),
		}
	}

	findings := make([]Finding, 0)
	masked := mask(text, opts, func(c Category, n int) {
		findings = append(findings, Finding{
			EntityType: string(c),
			Masked:     c.Placeholder(0, false),
			Count:      n,
		})
	})

	if strings.TrimSpace(masked) != "" {
		for _, rule := range customRules {
			out, n, err := rule.Replace(masked, opts.PreserveStructure)
			if err != nil {
				d.logger.Warn("Custom rule skipped", zap.String("rule", string(rule.Category)), zap.Error(err))
				continue
			}
			if n > 0 {
				masked = out
				findings = append(findings, Finding{
					EntityType: string(rule.Category),
					Masked:     rule.Category.Placeholder(0, false),
					Count:      n,
				})
			}
		}
	}

	result := ProcessResult{
		MaskedText: masked,
		Findings:   findings,
		Stats:      statsFor(text, masked),
	}

	if len(findings) > 0 {
		d.logger.Debug("PII masked", append(result.Stats.Fields(), zap.Int("categories", len(findings)))...)
	}

	return result
}

// Contains reports whether text holds any built-in PII category. Custom
// rules and disabled categories are not consulted.
func (d *Detector) Contains(text string) bool {
	return ContainsPII(text)
}

// ProcessHeaders scrubs sensitive headers. With forUpstream set, auth
// headers are preserved when configured so the provider call still works.
func (d *Detector) ProcessHeaders(headers map[string][]string, forUpstream bool) map[string][]string {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	if !cfg.Enabled || !cfg.HeaderScrubbing.Enabled {
		return headers
	}

	processed := make(map[string][]string, len(headers))
	for key, values := range headers {
		switch {
		case !isSensitiveHeader(key, cfg.HeaderScrubbing.Headers):
			processed[key] = values
		case forUpstream && cfg.HeaderScrubbing.PreserveUpstreamAuth && IsAuthHeader(key):
			processed[key] = values
		default:
			processed[key] = []string{"[REDACTED]"}
			d.logger.Debug("Header scrubbed", zap.String("header", key))
		}
	}
	return processed
}

func isSensitiveHeader(header string, sensitive []string) bool {
	lower := strings.ToLower(header)
	for _, s := range sensitive {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// IsAuthHeader checks if a header is used for authentication
func IsAuthHeader(header string) bool {
	lower := strings.ToLower(header)
	for _, h := range authHeaders {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
