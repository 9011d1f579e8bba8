package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the cftbridge banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`        __ _   _          _    _            `, "#34d399"},
		{`   ___ / _| |_| |__  _ __(_) __| | __ _  ___ `, "#2dd4bf"},
		{`  / __| |_| __| '_ \| '__| |/ _' |/ _' |/ _ \`, "#22d3ee"},
		{` | (__|  _| |_| |_) | |  | | (_| | (_| |  __/`, "#38bdf8"},
		{`  \___|_|  \__|_.__/|_|  |_|\__,_|\__, |\___|`, "#60a5fa"},
		{`                                  |___/      `, "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", termenv.String("v"+strings.TrimSpace(version)).Faint())
}
