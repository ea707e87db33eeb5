package models

// Result is one organic search hit, normalised across providers.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
}

// NoSnippet is used when a provider returns a hit without a description.
const NoSnippet = "No snippet available."
