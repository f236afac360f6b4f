package tui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/council/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer prints councils as markdown, styled by glamour when the output is a terminal.
type Renderer struct {
	out    io.Writer
	styled *glamour.TermRenderer
}

// NewRenderer returns a Renderer writing to out. Non-terminal writers get raw markdown.
func NewRenderer(out io.Writer) (*Renderer, error) {
	r := &Renderer{out: out}
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return r, nil
	}

	width := 100
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		width = w
	}
	styled, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	r.styled = styled
	return r, nil
}

// Print writes markdown to the output.
func (r *Renderer) Print(markdown string) error {
	if r.styled != nil {
		out, err := r.styled.Render(markdown)
		if err != nil {
			return err
		}
		markdown = out
	}
	_, err := io.WriteString(r.out, markdown)
	return err
}

// Council renders one snapshot.
func (r *Renderer) Council(s *domain.CouncilSession) error {
	return r.Print(CouncilMarkdown(s))
}

// Summaries renders a listing.
func (r *Renderer) Summaries(list []domain.Summary) error {
	return r.Print(SummaryMarkdown(list))
}

// CouncilMarkdown describes a council: participants, transitions, messages and result.
func CouncilMarkdown(s *domain.CouncilSession) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Council %s\n\n", s.ID)
	if s.Topic != "" {
		fmt.Fprintf(&sb, "> %s\n\n", s.Topic)
	}
	fmt.Fprintf(&sb, "- **Status:** %s\n", s.Status)
	if last, ok := s.LastTransition(); ok {
		fmt.Fprintf(&sb, "- **Reason:** %s\n", last.Reason)
		if last.Detail != "" {
			fmt.Fprintf(&sb, "- **Detail:** %s\n", last.Detail)
		}
	}
	fmt.Fprintf(&sb, "- **Created:** %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Deadline:** %s\n\n", s.DeadlineAt.Format(time.RFC3339))

	sb.WriteString("## Participants\n\n| Agent | State | Detail |\n|---|---|---|\n")
	for _, p := range s.Participants {
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", cell(p.Agent), p.State, cell(p.Detail))
	}

	if len(s.Evidence) > 0 {
		sb.WriteString("\n## Evidence\n\n| ID | Outcome |\n|---|---|\n")
		ids := make([]string, 0, len(s.Evidence))
		for id := range s.Evidence {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			rec := s.Evidence[id]
			outcome := "missing"
			switch {
			case rec.Failed:
				outcome = "failed: " + rec.Error
			case rec.Artifact != nil:
				outcome = fmt.Sprintf("%d bytes %s", rec.Artifact.Size(), rec.Artifact.ContentType)
			}
			fmt.Fprintf(&sb, "| %s | %s |\n", cell(id), cell(outcome))
		}
	}

	if len(s.TransitionLog) > 0 {
		sb.WriteString("\n## Transitions\n\n| At | From | To | Reason |\n|---|---|---|---|\n")
		for _, t := range s.TransitionLog {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", t.At.Format(time.TimeOnly), t.From, t.To, t.Reason)
		}
	}

	if len(s.Messages) > 0 {
		sb.WriteString("\n## Messages\n\n")
		for _, m := range s.Messages {
			kind := string(m.Kind)
			if kind == "" {
				kind = "message"
			}
			if m.Target != "" {
				kind += " of " + m.Target
			}
			fmt.Fprintf(&sb, "- **%s** (%s): %s\n", m.Agent, kind, m.Content)
		}
	}

	if s.Result != nil {
		fmt.Fprintf(&sb, "\n## Result\n\n%s\n\n", s.Result.Recommendation)
		fmt.Fprintf(&sb, "*%s, confidence %.2f", s.Result.Mode, s.Result.Confidence)
		if len(s.Result.Contributors) > 0 {
			fmt.Fprintf(&sb, ", from %s", strings.Join(s.Result.Contributors, ", "))
		}
		sb.WriteString("*\n")
	}
	return sb.String()
}

// SummaryMarkdown renders summaries as a table.
func SummaryMarkdown(list []domain.Summary) string {
	if len(list) == 0 {
		return "No councils.\n"
	}
	var sb strings.Builder
	sb.WriteString("| ID | Status | Topic | Agents | Messages | Deadline |\n|---|---|---|---|---|---|\n")
	for _, s := range list {
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %d | %s |\n",
			s.ID, s.Status, cell(s.Topic), s.Participants, s.Messages, s.DeadlineAt.Format(time.RFC3339))
	}
	return sb.String()
}

// cell keeps a value inside its table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
