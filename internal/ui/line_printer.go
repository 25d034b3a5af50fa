package ui

import (
	"fmt"
	"io"

	"github.com/temirov/execrun/internal/execshell"
)

const (
	plainLineTemplateConstant    = "%s\n"
	prefixedLineTemplateConstant = "[%s] %s\n"
)

// LinePrinter writes captured lines back to the console, routing each line to
// the writer of the stream it was read from.
type LinePrinter struct {
	standardOutput io.Writer
	standardError  io.Writer
	prefixStreams  bool
}

// NewLinePrinter builds a printer. Nil writers discard their stream.
func NewLinePrinter(standardOutput io.Writer, standardError io.Writer, prefixStreams bool) *LinePrinter {
	if standardOutput == nil {
		standardOutput = io.Discard
	}
	if standardError == nil {
		standardError = io.Discard
	}
	return &LinePrinter{standardOutput: standardOutput, standardError: standardError, prefixStreams: prefixStreams}
}

// Print writes every line of result in merged order.
func (printer *LinePrinter) Print(result execshell.ExecutionResult) error {
	for _, capturedLine := range result.Lines {
		if printError := printer.printLine(capturedLine); printError != nil {
			return printError
		}
	}
	return nil
}

func (printer *LinePrinter) printLine(capturedLine execshell.CapturedLine) error {
	destination := printer.standardOutput
	if capturedLine.Stream == execshell.StreamStandardError {
		destination = printer.standardError
	}
	var writeError error
	if printer.prefixStreams {
		_, writeError = fmt.Fprintf(destination, prefixedLineTemplateConstant, capturedLine.Stream, capturedLine.Text)
	} else {
		_, writeError = fmt.Fprintf(destination, plainLineTemplateConstant, capturedLine.Text)
	}
	return writeError
}
