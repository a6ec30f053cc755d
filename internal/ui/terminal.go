package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor decides whether stdout gets ANSI colors. NO_COLOR wins over
// everything (https://no-color.org), CLICOLOR_FORCE=1 forces color without a
// TTY, CLICOLOR=0 opts out, and otherwise color follows TTY detection.
func ShouldUseColor() bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(os.Getenv("CLICOLOR")) == "0":
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TitleWidth returns how many characters of a record title fit in list
// output, leaving room for the fixed columns. Falls back to 50 when stdout
// is not a terminal.
func TitleWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 50
	}
	width := w - 30
	if width < 20 {
		return 20
	}
	if width > 80 {
		return 80
	}
	return width
}
