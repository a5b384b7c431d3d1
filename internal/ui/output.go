package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Output provides colored terminal output for the CLI's success/error/
// warning/info status lines.
type Output struct {
	writer io.Writer

	// Color functions
	success *color.Color
	error   *color.Color
	warning *color.Color
	info    *color.Color
}

// NewOutput creates a new output instance
func NewOutput(w io.Writer) *Output {
	return &Output{
		writer:  w,
		success: color.New(color.FgGreen),
		error:   color.New(color.FgRed),
		warning: color.New(color.FgYellow),
		info:    color.New(color.FgCyan),
	}
}

// DefaultOutput creates output writing to stdout
func DefaultOutput() *Output {
	return NewOutput(os.Stdout)
}

// Success prints a success message in green
func (o *Output) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.success.Fprintf(o.writer, "✓ %s\n", msg)
}

// Error prints an error message in red
func (o *Output) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.error.Fprintf(o.writer, "✗ %s\n", msg)
}

// Warning prints a warning message in yellow
func (o *Output) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.warning.Fprintf(o.writer, "⚠ %s\n", msg)
}

// Info prints an info message in cyan
func (o *Output) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.info.Fprintf(o.writer, "ℹ %s\n", msg)
}

