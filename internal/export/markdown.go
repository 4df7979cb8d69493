package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/alienxp03/thinktank/internal/core"
)

// MarkdownExporter renders a debate as a Markdown report. Rendering
// depends only on the debate state, so a replayed debate produces
// byte-identical output.
type MarkdownExporter struct{}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string { return "md" }

// Export writes the debate as Markdown.
func (e *MarkdownExporter) Export(debate *core.Debate, w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", debate.SpecTitle)

	sb.WriteString("## Debate Information\n\n")
	fmt.Fprintf(&sb, "- **ID:** `%s`\n", debate.ID)
	fmt.Fprintf(&sb, "- **Panel:** %s\n", debate.PanelName)
	fmt.Fprintf(&sb, "- **Model:** %s (synthesis: %s)\n", debate.Model, debate.SynthModel)
	fmt.Fprintf(&sb, "- **Status:** %s\n", debate.Status)
	fmt.Fprintf(&sb, "- **Rounds:** %d\n", len(debate.Rounds))
	fmt.Fprintf(&sb, "- **Claims:** %d\n", debate.TotalClaims())
	fmt.Fprintf(&sb, "- **Started:** %s\n", debate.StartedAt.UTC().Format("2006-01-02 15:04:05"))
	if debate.FinishedAt != nil {
		fmt.Fprintf(&sb, "- **Finished:** %s\n", debate.FinishedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	sb.WriteString("\n")

	for _, round := range debate.Rounds {
		fmt.Fprintf(&sb, "## Round %d: %s\n\n", round.Number, round.Focus)
		fmt.Fprintf(&sb, "**Question:** %s\n\n", round.Question)

		if len(round.Skipped) > 0 {
			fmt.Fprintf(&sb, "*Skipped (no valid move): %s*\n\n", strings.Join(round.Skipped, ", "))
		}

		for _, m := range round.Moves {
			fmt.Fprintf(&sb, "### [%s] %s (%s)\n\n", m.ID, m.ExpertTitle, m.Type)
			if len(m.Targets) > 0 {
				fmt.Fprintf(&sb, "*Responds to: %s*\n\n", strings.Join(m.Targets, ", "))
			}
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")

			for _, c := range m.Claims {
				fmt.Fprintf(&sb, "- **%s** [%s] (%.2f) %s\n", c.ID, stanceMarker(c.Stance), c.Confidence, c.Text)
				for _, ev := range c.Evidence {
					fmt.Fprintf(&sb, "  - evidence: %s\n", ev)
				}
				for _, as := range c.Assumptions {
					fmt.Fprintf(&sb, "  - assumes: %s\n", as)
				}
			}
			if len(m.Claims) > 0 {
				sb.WriteString("\n")
			}
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
