package privacy

// Finding represents the masked spans of one category in a text
type Finding struct {
	EntityType string `json:"entityType"`
	Masked     string `json:"masked"`
	Count      int    `json:"count"`
}

// ProcessResult contains the result of processing text through the detector
type ProcessResult struct {
	MaskedText string       `json:"maskedText"`
	Findings   []Finding    `json:"findings"`
	Stats      MaskingStats `json:"stats"`
}

// TotalMasked sums the span counts of all findings
func (r ProcessResult) TotalMasked() int {
	total := 0
	for _, f := range r.Findings {
		total += f.Count
	}
	return total
}
