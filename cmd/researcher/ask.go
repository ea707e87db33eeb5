package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researcher/internal/agent"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	srv "github.com/mohammad-safakhou/researcher/internal/server"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A1A1AA"))

	footerStyle = lipgloss.NewStyle().Faint(true)

	errorStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#EF4444")).
			Padding(0, 1)
)

func askCMD(a *app) *cobra.Command {
	var maxResults, width int
	var asJSON bool

	ask := &cobra.Command{
		Use:   "ask <query>",
		Short: "Research a question and print the cited answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := srv.Build(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			res, err := deps.Agent.Run(cmd.Context(), strings.Join(args, " "), maxResults)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			text, err := render(res, width)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}
	ask.Flags().IntVarP(&maxResults, "max-results", "n", 0, "search results to read (default search.max_results)")
	ask.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	ask.Flags().IntVar(&width, "width", 100, "word wrap width")
	return ask
}

// answerMarkdown lays out the answer, key points and confidence as markdown.
func answerMarkdown(res *agent.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", res.Query, res.Answer)
	if res.Parsed == nil {
		return b.String()
	}
	if len(res.Parsed.KeyPoints) > 0 {
		b.WriteString("\n## Key points\n\n")
		for _, kp := range res.Parsed.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
	}
	if c := strings.TrimSpace(res.Parsed.Confidence); c != "" {
		fmt.Fprintf(&b, "\n## Confidence\n\n%s\n", c)
	}
	return b.String()
}

func citations(res *agent.Result) []helpers.Citation {
	out := make([]helpers.Citation, 0, len(res.Sources))
	for _, s := range res.Sources {
		out = append(out, helpers.Citation{Title: s.Title, URL: s.URL, Domain: s.Domain, Snippet: s.Snippet})
	}
	return out
}

func render(res *agent.Result, width int) (string, error) {
	if res.Error != "" {
		return errorStyle.Render(res.Answer), nil
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	md, err := r.Render(answerMarkdown(res))
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(md, "\n"))
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Sources"))
	b.WriteString("\n")
	for _, line := range helpers.FormatCitations(citations(res), helpers.WithMaxSnippetLength(0)) {
		b.WriteString(sourceStyle.Render(line))
		b.WriteString("\n")
	}

	footer := fmt.Sprintf("%s · %d sources · %s", res.Model, len(res.Sources), res.Duration.Round(100*time.Millisecond))
	if res.Cached {
		footer += " · cached"
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(footer))
	return b.String(), nil
}
