package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	cyan  = "\033[36m"
	dim   = "\033[2m"
)

var logoLines = [6]string{
	`  ____  _             ___                 _            _ `,
	` / ___|| | ___  _ __ / _ \__   _____ _ __| | ___  _ __ __| |`,
	` \___ \| |/ _ \| '_ \ | | \ \ / / _ \ '__| |/ _ \| '__/ _` + "`" + ` |`,
	`  ___) | | (_) | |_) | |_| |\ V /  __/ |  | | (_) | | | (_| |`,
	` |____/|_|\___/| .__/ \___/  \_/ \___|_|  |_|\___/|_|  \__,_|`,
	`                |_|                                          `,
}

// PrintBanner prints the SlopOverlord ASCII art logo, version, and
// workspace root to stderr. Colors are used only when stderr is a TTY.
func PrintBanner(ver, workspaceRoot string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	for _, line := range logoLines {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", bold+cyan, line, reset)
		} else {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %sworkspace%s %s\n\n",
			dim, reset, ver, dim, reset, workspaceRoot)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   workspace %s\n\n", ver, workspaceRoot)
	}
}
