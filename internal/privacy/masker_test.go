package privacy

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const compositeJournal = "오늘은 조용한 하루였다.\n\n" +
	"연락처: diary.owner@example.com\n" +
	"휴대폰: 010-9876-5432\n\n" +
	"주소: 서울특별시 강남구 테헤란로 123\n\n" +
	"백업 파일은 /Users/tony/journal/2024-05-01.md 에 있다."

// TestMaskOrdering checks that specific digit shapes win over broader ones
func TestMaskOrdering(t *testing.T) {
	t.Run("SSNBeforePhone", func(t *testing.T) {
		got := Mask("123456-1234567", MaskOptions{})
		if got != "[SSN]" {
			t.Fatalf("Expected [SSN], got %q", got)
		}
	})

	t.Run("SSNWithoutHyphen", func(t *testing.T) {
		got := Mask("1234561234567", MaskOptions{})
		if got != "[SSN]" {
			t.Fatalf("Expected [SSN], got %q", got)
		}
	})

	t.Run("CardBeforePhone", func(t *testing.T) {
		got := Mask("1234-5678-9012-3456", MaskOptions{})
		if got != "[CARD]" {
			t.Fatalf("Expected [CARD], got %q", got)
		}
	})

	t.Run("CardWithSpaces", func(t *testing.T) {
		got := Mask("카드 1234 5678 9012 3456 결제", MaskOptions{DisableNameMasking: true})
		if got != "카드 [CARD] 결제" {
			t.Fatalf("Expected card masked, got %q", got)
		}
	})
}

func TestMaskPathAfterColon(t *testing.T) {
	for input, want := range map[string]string{
		"경로:/Users/tony/secret.txt": "경로:[PATH]",
		"path:/home/tony/diary.md":   "path:[PATH]",
		"백업(C:\\backup\\diary)":     "백업([PATH])",
	} {
		if got := Mask(input, MaskOptions{}); got != want {
			t.Errorf("Mask(%q) = %q, want %q", input, got, want)
		}
		if !ContainsPII(input) {
			t.Errorf("Expected PII in %q", input)
		}
	}
}

func TestMaskAddressWithoutNumber(t *testing.T) {
	for input, want := range map[string]string{
		"서울시 강남구 역삼동":          "[ADDRESS]",
		"서울특별시 강남구 역삼동 아파트":    "[ADDRESS]",
		"주소: 서울시 강남구 역삼동, 3층": "주소: [ADDRESS], 3층",
	} {
		if got := Mask(input, MaskOptions{}); got != want {
			t.Errorf("Mask(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMaskMultipleMatches(t *testing.T) {
	got := Mask("test1@example.com test2@example.com test3@example.com", MaskOptions{})
	if got != "[EMAIL] [EMAIL] [EMAIL]" {
		t.Fatalf("Expected three email placeholders, got %q", got)
	}
}

func TestMaskOptionGating(t *testing.T) {
	path := "/Users/tony/file.txt"

	t.Run("PathMaskedByDefault", func(t *testing.T) {
		if got := Mask(path, MaskOptions{}); got != "[PATH]" {
			t.Fatalf("Expected [PATH], got %q", got)
		}
	})

	t.Run("PathMaskingDisabled", func(t *testing.T) {
		if got := Mask(path, MaskOptions{DisablePathMasking: true}); got != path {
			t.Fatalf("Expected path untouched, got %q", got)
		}
	})

	t.Run("NameMaskedByDefault", func(t *testing.T) {
		if got := Mask("홍 길동", MaskOptions{}); got != "[NAME]" {
			t.Fatalf("Expected [NAME], got %q", got)
		}
	})

	t.Run("NameMaskingDisabled", func(t *testing.T) {
		if got := Mask("홍 길동", MaskOptions{DisableNameMasking: true}); got != "홍 길동" {
			t.Fatalf("Expected name untouched, got %q", got)
		}
	})
}

func TestMaskEmptyAndWhitespace(t *testing.T) {
	for _, input := range []string{"", "   \n\t  ", "\n\n"} {
		if got := Mask(input, MaskOptions{}); got != input {
			t.Errorf("Expected %q unchanged, got %q", input, got)
		}
	}
}

func TestMaskKeepsNumericRanges(t *testing.T) {
	got := Mask("오늘 회의에서 10-20명 참석", MaskOptions{})
	if !strings.Contains(got, "10-20") {
		t.Fatalf("Numeric range should survive masking, got %q", got)
	}
	if strings.Contains(got, "[PHONE]") {
		t.Fatalf("Numeric range masked as phone: %q", got)
	}
}

func TestMaskPreserveStructure(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"test@example.com", "[EMAIL_16]"},
		{"010-1234-5678", "[PHONE_13]"},
		{"홍 길동", "[NAME_4]"},
		{"/Users/tony/file.txt", "[PATH_20]"},
	}

	for _, tt := range tests {
		got := Mask(tt.input, MaskOptions{PreserveStructure: true})
		if got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMaskCompositeText(t *testing.T) {
	got := Mask(compositeJournal, MaskOptions{})

	for _, literal := range []string{
		"diary.owner@example.com",
		"010-9876-5432",
		"서울특별시 강남구 테헤란로 123",
		"/Users/tony/journal/2024-05-01.md",
	} {
		if strings.Contains(got, literal) {
			t.Errorf("Masked text still contains %q:\n%s", literal, got)
		}
	}

	for _, placeholder := range []string{"[EMAIL]", "[PHONE]", "[ADDRESS]", "[PATH]"} {
		if !strings.Contains(got, placeholder) {
			t.Errorf("Masked text is missing %s:\n%s", placeholder, got)
		}
	}

	if strings.Count(got, "\n\n") != strings.Count(compositeJournal, "\n\n") {
		t.Error("Paragraph breaks should be preserved")
	}
}

func TestMaskIdempotent(t *testing.T) {
	inputs := []string{
		compositeJournal,
		"123456-1234567 1234-5678-9012-3456 (02) 123-4567",
		"서버 192.168.0.1 접속, 로그는 C:\\Users\\tony\\logs\\app.log 참고",
		"홍 길동 김 철수 박 영희",
		"경기도 성남시 분당구 정자동 178-1 에서 만남",
		"mail me at someone@example.org/~/notes or ~/journal/today.md",
		"가 나다라마 바사",
		"오늘 회의에서 10-20명 참석",
		"홍 길동/일기.md 경로:/Users/tony/secret.txt",
		"서울특별시 강남구 역삼동 아파트, 홍 길동",
	}

	for _, opts := range []MaskOptions{{}, {PreserveStructure: true}, {DisableNameMasking: true}} {
		for _, input := range inputs {
			once := Mask(input, opts)
			twice := Mask(once, opts)
			if once != twice {
				t.Errorf("Masking is not idempotent for %q with %+v:\n once: %q\ntwice: %q", input, opts, once, twice)
			}
		}
	}
}

func TestContainsPII(t *testing.T) {
	t.Run("Detects", func(t *testing.T) {
		for _, input := range []string{
			"mail test@example.com",
			"call 010-1234-5678",
			"/Users/tony/file.txt",
			"홍 길동",
			"부산시 해운대구",
		} {
			if !ContainsPII(input) {
				t.Errorf("Expected PII in %q", input)
			}
		}
	})

	t.Run("Clean", func(t *testing.T) {
		for _, input := range []string{"", "  ", "hello world", "see https://example.com/a/b", "안녕하세요 여러분"} {
			if ContainsPII(input) {
				t.Errorf("Expected no PII in %q", input)
			}
		}
	})

	t.Run("IgnoresMaskOptions", func(t *testing.T) {
		path := "/Users/tony/file.txt"
		if Mask(path, MaskOptions{DisablePathMasking: true}) != path {
			t.Fatal("Path should not be masked when disabled")
		}
		if !ContainsPII(path) {
			t.Fatal("Detection should still report the path")
		}
	})
}

func TestMaskConcurrentUse(t *testing.T) {
	want := Mask(compositeJournal, MaskOptions{})
	done := make(chan string, 16)
	for i := 0; i < cap(done); i++ {
		go func() { done <- Mask(compositeJournal, MaskOptions{}) }()
	}
	for i := 0; i < cap(done); i++ {
		if got := <-done; got != want {
			t.Fatalf("Concurrent result differs: %q", got)
		}
	}
}

func TestMaskWithStats(t *testing.T) {
	input := "이메일: test@example.com, 전화: 010-1234-5678"
	masked, stats := MaskWithStats(input, MaskOptions{})

	if masked != "이메일: [EMAIL], 전화: [PHONE]" {
		t.Fatalf("Unexpected masked text %q", masked)
	}
	if !stats.PIIDetected {
		t.Error("Expected PII to be detected")
	}
	if stats.MaskedCount < 2 {
		t.Errorf("Expected at least 2 masked spans, got %d", stats.MaskedCount)
	}
	if stats.OriginalLength != utf8.RuneCountInString(input) {
		t.Errorf("Expected original length %d, got %d", utf8.RuneCountInString(input), stats.OriginalLength)
	}
	if stats.MaskedLength != utf8.RuneCountInString(masked) {
		t.Errorf("Expected masked length %d, got %d", utf8.RuneCountInString(masked), stats.MaskedLength)
	}

	t.Run("NoPII", func(t *testing.T) {
		masked, stats := MaskWithStats("just a quiet day", MaskOptions{})
		if masked != "just a quiet day" || stats.PIIDetected || stats.MaskedCount != 0 {
			t.Fatalf("Unexpected stats for clean text: %q %+v", masked, stats)
		}
	})

	t.Run("PreserveStructureCounted", func(t *testing.T) {
		_, stats := MaskWithStats("a@b.co 010-1234-5678", MaskOptions{PreserveStructure: true})
		if stats.MaskedCount != 2 {
			t.Fatalf("Expected 2 structured placeholders, got %d", stats.MaskedCount)
		}
	})
}
