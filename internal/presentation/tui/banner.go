package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the council banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"   ___                  _ _ ", "#818cf8"},
		{"  / __|___ _  _ _ _  __(_) |", "#a78bfa"},
		{" | (__/ _ \\ || | ' \\/ _| | |", "#c084fc"},
		{"  \\___\\___/\\_,_|_||_\\__|_|_|", "#e879f9"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}
