package agent

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// SourceSummary is what one fetch+summarize task produces.
type SourceSummary struct {
	URL     string `json:"url"`
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Summary string `json:"summary"`
}

// Source is the public citation record for a kept source.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Domain  string `json:"domain"`
	Snippet string `json:"snippet"`
}

// KeyPoints accepts a JSON list or a single bulleted string. List items may be
// strings, objects carrying a point/text field, or bare scalars.
type KeyPoints []string

func (k *KeyPoints) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*k = splitBullets(text)
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		// a lone object or number is one point
		items = []json.RawMessage{b}
	}
	var out []string
	for _, item := range items {
		if p := pointText(item); p != "" {
			out = append(out, p)
		}
	}
	*k = out
	return nil
}

func splitBullets(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "-*•"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

var pointFields = []string{"point", "text", "claim", "content", "summary"}

func pointText(raw json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return strings.TrimSpace(jsonText(raw))
	}
	for _, field := range pointFields {
		p := strings.TrimSpace(jsonText(obj[field]))
		if p == "" {
			continue
		}
		var src string
		if json.Unmarshal(obj["source"], &src) == nil && src != "" && !strings.Contains(p, src) {
			p += " " + src
		}
		return p
	}
	return jsonText(raw)
}

// jsonText renders a JSON value as text: strings unquoted, null empty and
// everything else as compact JSON.
func jsonText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Parsed is the structured consolidation answer.
type Parsed struct {
	Answer     string    `json:"answer"`
	KeyPoints  KeyPoints `json:"key_points"`
	Confidence string    `json:"confidence"`
}

// UnmarshalJSON only fails when b is not a JSON object. Non-string answer and
// confidence values are kept as their JSON text.
func (p *Parsed) UnmarshalJSON(b []byte) error {
	var aux struct {
		Answer     json.RawMessage `json:"answer"`
		KeyPoints  KeyPoints       `json:"key_points"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = Parsed{Answer: jsonText(aux.Answer), KeyPoints: aux.KeyPoints, Confidence: jsonText(aux.Confidence)}
	return nil
}

// Consolidation is the outcome of the final model call. Parsed is nil when the
// call or the JSON parse failed; Raw then carries the fallback text.
type Consolidation struct {
	Raw    string  `json:"raw"`
	Model  string  `json:"model"`
	Parsed *Parsed `json:"parsed_data,omitempty"`
}

// Result is the response of one research run.
type Result struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	Answer    string          `json:"answer"`
	Model     string          `json:"model,omitempty"`
	Sources   []Source        `json:"sources"`
	PerSource []SourceSummary `json:"per_source"`
	Parsed    *Parsed         `json:"parsed_data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Cached    bool            `json:"cached"`
	Duration  time.Duration   `json:"duration_ms"`
	CreatedAt time.Time       `json:"created_at"`
}

// MarshalJSON reports Duration in milliseconds.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		Duration int64 `json:"duration_ms"`
	}{alias: alias(r), Duration: r.Duration.Milliseconds()})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	type alias Result
	aux := struct {
		*alias
		Duration int64 `json:"duration_ms"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Duration = time.Duration(aux.Duration) * time.Millisecond
	return nil
}
