package execshell

import (
	"fmt"
	"time"
)

const (
	streamStandardOutputLabelConstant = "stdout"
	streamStandardErrorLabelConstant  = "stderr"
	statusCompletedLabelConstant      = "completed"
	statusTimedOutLabelConstant       = "timed-out"
	statusLaunchFailedLabelConstant   = "launch-failed"
	statusInterruptedLabelConstant    = "interrupted"
	unknownEnumTemplateConstant       = "unknown(%d)"
)

// StreamName identifies the standard stream a line was captured from.
type StreamName int

// Supported streams.
const (
	StreamStandardOutput StreamName = iota
	StreamStandardError
)

// String returns the conventional short stream name.
func (stream StreamName) String() string {
	switch stream {
	case StreamStandardOutput:
		return streamStandardOutputLabelConstant
	case StreamStandardError:
		return streamStandardErrorLabelConstant
	default:
		return fmt.Sprintf(unknownEnumTemplateConstant, int(stream))
	}
}

// ExecutionStatus enumerates the outcomes of a single run.
type ExecutionStatus int

// Supported statuses.
const (
	StatusCompleted ExecutionStatus = iota
	StatusTimedOut
	StatusLaunchFailed
	StatusInterrupted
)

// String returns the status label.
func (status ExecutionStatus) String() string {
	switch status {
	case StatusCompleted:
		return statusCompletedLabelConstant
	case StatusTimedOut:
		return statusTimedOutLabelConstant
	case StatusLaunchFailed:
		return statusLaunchFailedLabelConstant
	case StatusInterrupted:
		return statusInterruptedLabelConstant
	default:
		return fmt.Sprintf(unknownEnumTemplateConstant, int(status))
	}
}

// CapturedLine is one decoded line of output.
type CapturedLine struct {
	Stream   StreamName
	Sequence int
	Text     string
}

// ExecutionResult is the outcome of a single run.
//
// Lines holds every standard error line followed by every standard output line.
// ExitCode is nil unless the process exited on its own before the deadline.
type ExecutionResult struct {
	RunID            string
	Status           ExecutionStatus
	ExitCode         *int
	Lines            []CapturedLine
	StartedAt        time.Time
	Duration         time.Duration
	Truncated        bool
	AbandonedStreams []StreamName
}

// HasExitCode reports whether an exit code was observed.
func (result ExecutionResult) HasExitCode() bool {
	return result.ExitCode != nil
}

// ExitCodeOrDefault returns the exit code, or fallback when none was observed.
func (result ExecutionResult) ExitCodeOrDefault(fallback int) int {
	if result.ExitCode == nil {
		return fallback
	}
	return *result.ExitCode
}

// Succeeded reports a completed run with exit code zero.
func (result ExecutionResult) Succeeded() bool {
	return result.Status == StatusCompleted && result.ExitCodeOrDefault(-1) == 0
}

// Texts returns the text of every captured line in result order.
func (result ExecutionResult) Texts() []string {
	texts := make([]string, 0, len(result.Lines))
	for _, line := range result.Lines {
		texts = append(texts, line.Text)
	}
	return texts
}

// StreamTexts returns the text of lines captured from one stream.
func (result ExecutionResult) StreamTexts(stream StreamName) []string {
	texts := []string{}
	for _, line := range result.Lines {
		if line.Stream == stream {
			texts = append(texts, line.Text)
		}
	}
	return texts
}

func mergeCapturedLines(standardErrorLines []CapturedLine, standardOutputLines []CapturedLine) []CapturedLine {
	merged := make([]CapturedLine, 0, len(standardErrorLines)+len(standardOutputLines))
	merged = append(merged, standardErrorLines...)
	merged = append(merged, standardOutputLines...)
	return merged
}

func exitCodePointer(exitCode int) *int {
	return &exitCode
}
