package engine

import "encoding/json"

// successSummary builds the UsageEntry detail for a successful non-streaming
// attempt: id, created, usage, and per-choice finish reasons only — never
// the message text, per spec.md §4.7.
func successSummary(body []byte) string {
	var parsed struct {
		ID      string `json:"id"`
		Created int64  `json:"created"`
		Usage   any    `json:"usage"`
		Choices []struct {
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "success: response received"
	}
	reasons := make([]*string, 0, len(parsed.Choices))
	for _, c := range parsed.Choices {
		reasons = append(reasons, c.FinishReason)
	}
	out := map[string]any{
		"id":             parsed.ID,
		"created":        parsed.Created,
		"usage":          parsed.Usage,
		"finish_reasons": reasons,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "success: response received"
	}
	return string(b)
}
