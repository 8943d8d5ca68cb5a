package privacy

import (
	"testing"

	"github.com/raaihank/journal-sentinel/internal/config"
	"github.com/raaihank/journal-sentinel/internal/logger"
)

func testPrivacyConfig() config.PrivacyConfig {
	return config.GetDefaults().Privacy
}

// TestDetector tests the configured masking service
func TestDetector(t *testing.T) {
	log := logger.Nop()

	t.Run("New", func(t *testing.T) {
		d, err := New(testPrivacyConfig(), log)
		if err != nil {
			t.Fatalf("Failed to create detector: %v", err)
		}
		if !d.Enabled() {
			t.Error("Detector should be enabled by default")
		}
		if d.Options() != (MaskOptions{}) {
			t.Errorf("Expected zero options, got %+v", d.Options())
		}
	})

	t.Run("ProcessTextFindingsInPipelineOrder", func(t *testing.T) {
		d, _ := New(testPrivacyConfig(), log)

		result := d.ProcessText("이메일: test@example.com, 전화: 010-1234-5678, 보조: 02-123-4567")
		if result.MaskedText != "이메일: [EMAIL], 전화: [PHONE], 보조: [PHONE]" {
			t.Fatalf("Unexpected masked text %q", result.MaskedText)
		}
		if len(result.Findings) != 2 {
			t.Fatalf("Expected 2 findings, got %d", len(result.Findings))
		}
		if result.Findings[0].EntityType != "PHONE" || result.Findings[0].Count != 2 {
			t.Errorf("Unexpected first finding %+v", result.Findings[0])
		}
		if result.Findings[1].EntityType != "EMAIL" || result.Findings[1].Masked != "[EMAIL]" {
			t.Errorf("Unexpected second finding %+v", result.Findings[1])
		}
		if result.TotalMasked() != 3 || result.Stats.MaskedCount != 3 {
			t.Errorf("Expected 3 masked spans, got %d / %d", result.TotalMasked(), result.Stats.MaskedCount)
		}
	})

	t.Run("ConfiguredDefaults", func(t *testing.T) {
		cfg := testPrivacyConfig()
		cfg.PreserveStructure = true
		cfg.DisablePathMasking = true
		d, _ := New(cfg, log)

		result := d.ProcessText("test@example.com /Users/tony/file.txt")
		if result.MaskedText != "[EMAIL_16] /Users/tony/file.txt" {
			t.Fatalf("Unexpected masked text %q", result.MaskedText)
		}
	})

	t.Run("PerRequestOptions", func(t *testing.T) {
		d, _ := New(testPrivacyConfig(), log)

		result := d.ProcessTextWithOptions("홍 길동", MaskOptions{DisableNameMasking: true})
		if result.MaskedText != "홍 길동" || len(result.Findings) != 0 {
			t.Fatalf("Name should be kept, got %+v", result)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		cfg := testPrivacyConfig()
		cfg.Enabled = false
		d, _ := New(cfg, log)

		result := d.ProcessText("test@example.com")
		if result.MaskedText != "test@example.com" || result.Stats.PIIDetected {
			t.Fatalf("Disabled detector should pass text through, got %+v", result)
		}
	})

	t.Run("CustomRules", func(t *testing.T) {
		cfg := testPrivacyConfig()
		cfg.CustomRules = []config.CustomRuleConfig{{Name: "diary_id", Pattern: `(?<=diary-)\d{4}`}}
		d, err := New(cfg, log)
		if err != nil {
			t.Fatalf("Failed to create detector: %v", err)
		}

		result := d.ProcessText("diary-2024 from test@example.com")
		if result.MaskedText != "diary-[DIARY_ID] from [EMAIL]" {
			t.Fatalf("Unexpected masked text %q", result.MaskedText)
		}
		last := result.Findings[len(result.Findings)-1]
		if last.EntityType != "DIARY_ID" || last.Count != 1 {
			t.Errorf("Unexpected custom finding %+v", last)
		}
		if d.Contains("diary-2024") {
			t.Error("Contains should only consult built-in categories")
		}
	})

	t.Run("InvalidCustomRules", func(t *testing.T) {
		cfg := testPrivacyConfig()
		cfg.CustomRules = []config.CustomRuleConfig{{Name: "phone", Pattern: `\d+`}}
		if _, err := New(cfg, log); err == nil {
			t.Fatal("Expected error for rule clashing with a built-in category")
		}

		cfg.CustomRules = []config.CustomRuleConfig{
			{Name: "ticket", Pattern: `T-\d+`},
			{Name: "TICKET", Pattern: `TK-\d+`},
		}
		if _, err := New(cfg, log); err == nil {
			t.Fatal("Expected error for duplicate custom rules")
		}
	})

	t.Run("ReloadKeepsPreviousOnError", func(t *testing.T) {
		d, _ := New(testPrivacyConfig(), log)

		cfg := testPrivacyConfig()
		cfg.DisableNameMasking = true
		if err := d.Reload(cfg); err != nil {
			t.Fatalf("Failed to reload: %v", err)
		}
		if !d.Options().DisableNameMasking {
			t.Fatal("Reload should apply new options")
		}

		bad := testPrivacyConfig()
		bad.CustomRules = []config.CustomRuleConfig{{Name: "x", Pattern: `(`}}
		if err := d.Reload(bad); err == nil {
			t.Fatal("Expected reload error")
		}
		if !d.Options().DisableNameMasking {
			t.Fatal("Failed reload should keep previous options")
		}
	})
}

func TestProcessHeaders(t *testing.T) {
	d, _ := New(testPrivacyConfig(), logger.Nop())
	headers := map[string][]string{
		"Authorization": {"Bearer secret"},
		"Cookie":        {"session=abc"},
		"Content-Type":  {"application/json"},
	}

	t.Run("ForLogging", func(t *testing.T) {
		out := d.ProcessHeaders(headers, false)
		if out["Authorization"][0] != "[REDACTED]" || out["Cookie"][0] != "[REDACTED]" {
			t.Errorf("Sensitive headers should be redacted: %v", out)
		}
		if out["Content-Type"][0] != "application/json" {
			t.Errorf("Content-Type should be kept: %v", out)
		}
	})

	t.Run("ForUpstream", func(t *testing.T) {
		out := d.ProcessHeaders(headers, true)
		if out["Authorization"][0] != "Bearer secret" {
			t.Errorf("Auth header should be preserved upstream: %v", out)
		}
		if out["Cookie"][0] != "[REDACTED]" {
			t.Errorf("Cookie should still be redacted: %v", out)
		}
	})

	t.Run("IsAuthHeader", func(t *testing.T) {
		if !IsAuthHeader("X-Api-Key") || IsAuthHeader("Cookie") {
			t.Error("Unexpected auth header classification")
		}
	})
}
