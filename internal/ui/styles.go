package ui

import "fmt"

// ANSI256 color codes for CLI output.
const (
	colorAccent  = 110 // soft blue, section headers
	colorCommand = 252 // light gray, command names
	colorMuted   = 244 // medium gray, annotations
)

func render(code int, s string) string {
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent styles s as a section header.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderCommand styles s as a command name.
func RenderCommand(s string) string { return render(colorCommand, s) }

// RenderMuted styles s as secondary text.
func RenderMuted(s string) string { return render(colorMuted, s) }
