package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/council/pkg/domain"
)

// Overlay marks the path a council actually took through the lifecycle.
type Overlay struct {
	Taken   []domain.TransitionRecord
	Current domain.Status
}

// OverlayFor builds the overlay of s.
func OverlayFor(s *domain.CouncilSession) *Overlay {
	return &Overlay{Taken: s.TransitionLog, Current: s.Status}
}

var lifecycle = []domain.Status{
	domain.StatusPending,
	domain.StatusGathering,
	domain.StatusDeliberating,
	domain.StatusSynthesizing,
	domain.StatusCompleted,
	domain.StatusFailed,
	domain.StatusTimedOut,
	domain.StatusCancelled,
}

// GenerateMermaid produces a Mermaid flowchart of the council lifecycle.
// Terminal statuses are drawn as stadiums; deadline and cancel edges are dotted.
// Edges a council took are labelled with their reason when an overlay is given.
func GenerateMermaid(overlay *Overlay) string {
	taken := make(map[[2]domain.Status]domain.Reason)
	if overlay != nil {
		for _, t := range overlay.Taken {
			taken[[2]domain.Status{t.From, t.To}] = t.Reason
		}
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, st := range lifecycle {
		opener, closer := "[", "]"
		if st.IsTerminal() {
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", st, opener, st, closer)
	}

	for _, from := range lifecycle {
		for _, to := range lifecycle {
			if !domain.CanTransition(from, to) {
				continue
			}
			dotted := to == domain.StatusTimedOut || to == domain.StatusCancelled
			reason, ok := taken[[2]domain.Status{from, to}]
			switch {
			case ok && dotted:
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", from, reason, to)
			case ok:
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, reason, to)
			case dotted:
				fmt.Fprintf(&sb, "    %s -.-> %s\n", from, to)
			default:
				fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[domain.Status]bool)
		for _, t := range overlay.Taken {
			for _, st := range []domain.Status{t.From, t.To} {
				if !visited[st] && st != overlay.Current {
					visited[st] = true
					fmt.Fprintf(&sb, "    class %s visited;\n", st)
				}
			}
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", overlay.Current)
		}
	}
	return sb.String()
}
