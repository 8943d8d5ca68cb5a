package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raaihank/journal-sentinel/internal/privacy"
)

// Event is the audit record of one masking operation. It carries sizes and
// category counts only; neither original nor masked text is stored.
type Event struct {
	ID             int64     `db:"id" json:"id"`
	RequestID      string    `db:"request_id" json:"requestId"`
	Source         string    `db:"source" json:"source"`
	Provider       string    `db:"provider" json:"provider,omitempty"`
	OriginalLength int       `db:"original_length" json:"originalLength"`
	MaskedLength   int       `db:"masked_length" json:"maskedLength"`
	MaskedCount    int       `db:"masked_count" json:"maskedCount"`
	PIIDetected    bool      `db:"pii_detected" json:"piiDetected"`
	Findings       Findings  `db:"findings" json:"findings"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// NewEvent builds an audit event from a detector result
func NewEvent(requestID, source, provider string, result privacy.ProcessResult) *Event {
	return &Event{
		RequestID:      requestID,
		Source:         source,
		Provider:       provider,
		OriginalLength: result.Stats.OriginalLength,
		MaskedLength:   result.Stats.MaskedLength,
		MaskedCount:    result.TotalMasked(),
		PIIDetected:    result.Stats.PIIDetected,
		Findings:       Findings(result.Findings),
	}
}

// Findings is stored as a JSONB column
type Findings []privacy.Finding

// Value implements driver.Valuer
func (f Findings) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (f *Findings) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*f = Findings{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported findings type %T", src)
	}
	return json.Unmarshal(data, f)
}

// Summary aggregates the audit log
type Summary struct {
	TotalEvents     int64      `db:"total_events" json:"totalEvents"`
	PIIEvents       int64      `db:"pii_events" json:"piiEvents"`
	MaskedSpans     int64      `db:"masked_spans" json:"maskedSpans"`
	OriginalChars   int64      `db:"original_chars" json:"originalChars"`
	MaskedChars     int64      `db:"masked_chars" json:"maskedChars"`
	FirstEventAt    *time.Time `db:"first_event_at" json:"firstEventAt,omitempty"`
	LastEventAt     *time.Time `db:"last_event_at" json:"lastEventAt,omitempty"`
	DistinctSources int64     `db:"distinct_sources" json:"distinctSources"`
}
