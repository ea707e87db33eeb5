package agent

import (
	"fmt"
	"strings"
)

const (
	summarizeInstruction = "You are a helpful research assistant. Summarize the following source into a concise set of bullet points " +
		"and list the most important claims (1-3 sentences each). Keep each bullet short and focus only on facts.\n\n"

	consolidateSystem = "You are an accurate academic summarizer. Always output a valid JSON object."

	consolidateFormat = "\n\nReturn the final result STRICTLY in one JSON object with these three keys: " +
		`{"answer": <text>, "key_points": <bullets>, "confidence": <text>}`

	// summaries carrying this marker are fallbacks and stay out of the consolidation prompt
	summarizeErrorMarker = "Error summarizing"
)

func summarizePrompt(text string) string {
	return summarizeInstruction + "Source text:\n" + text + "\n\nSummary:"
}

func consolidatePrompt(query string, summaries []SourceSummary) string {
	var b strings.Builder
	b.WriteString("You are an expert research assistant. Given the user's question and multiple short source summaries, produce:\n")
	b.WriteString("1) A short final answer (3–6 sentences) synthesizing the evidence.\n")
	b.WriteString("2) A bullet list of 'Key points / evidence' with short citations like [1], [2].\n")
	b.WriteString("3) A short 'Confidence' note explaining whether evidence is consistent or conflicting.\n\n")
	fmt.Fprintf(&b, "User question: %s\n\n", query)
	b.WriteString("Source summaries (numbered):\n")

	for i, s := range summaries {
		if strings.Contains(s.Summary, summarizeErrorMarker) {
			continue
		}
		label := s.Domain
		if label == "" {
			label = s.URL
		}
		fmt.Fprintf(&b, "\n[%d] Source: %s\nSummary:\n%s\n", i+1, label, s.Summary)
	}
	b.WriteString(consolidateFormat)
	return b.String()
}
