package ui

import (
	"fmt"

	"github.com/oakfield/servicelog/internal/model"
)

// ANSI256 color codes for status dispositions.
const (
	colorLive    = 70  // green
	colorWaiting = 178 // yellow
	colorDead    = 167 // red
	colorMuted   = 245 // medium gray
)

var noColor bool

// RenderStatus colors a status by disposition: green for live records,
// yellow for ones awaiting review, red for rejected or removed ones, and
// muted gray for archived.
func RenderStatus(s model.Status) string {
	if noColor {
		return s.String()
	}
	var color int
	switch s {
	case model.StatusApproved, model.StatusActive:
		color = colorLive
	case model.StatusPending:
		color = colorWaiting
	case model.StatusDeclined, model.StatusCancelled, model.StatusTrashed:
		color = colorDead
	default:
		color = colorMuted
	}
	return paint(color, s.String())
}

// RenderMuted returns s in the muted gray.
func RenderMuted(s string) string {
	if noColor {
		return s
	}
	return paint(colorMuted, s)
}

func paint(color int, s string) string {
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
