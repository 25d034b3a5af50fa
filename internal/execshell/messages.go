package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericExitFailureTemplateConstant      = "%s exited with code %d%s"
	genericUnknownExitTemplateConstant      = "%s ended without an exit code%s"
	genericTimeoutTemplateConstant          = "%s timed out after %s%s"
	genericInterruptedTemplateConstant      = "%s was interrupted%s"
	genericExecutionFailureTemplateConstant = "%s failed to launch: %s"
	standardErrorSuffixTemplateConstant     = ": %s"
	truncationSuffixConstant                = " (output truncated)"
	unknownFailureMessageConstant           = "unknown error"
)

// CommandMessageFormatter renders human-readable lifecycle messages.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(spec CommandSpec) string {
	return formatter.buildMessage(spec, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage describes a command that completed with exit code zero.
func (formatter CommandMessageFormatter) BuildSuccessMessage(spec CommandSpec) string {
	return formatter.buildMessage(spec, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage describes a command that exited non-zero, timed out, or was interrupted.
func (formatter CommandMessageFormatter) BuildFailureMessage(spec CommandSpec, result ExecutionResult) string {
	return formatter.buildMessage(spec, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage describes a command that could not be launched.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(spec CommandSpec, failure error) string {
	return formatter.buildMessage(spec, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(spec CommandSpec, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := spec.String()
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return formatter.describeFailure(spec, result)
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeError(failure))
	}
}

func (formatter CommandMessageFormatter) describeFailure(spec CommandSpec, result ExecutionResult) string {
	commandLabel := spec.String()
	suffix := formatter.formatStandardErrorSuffix(result)
	if result.Truncated {
		suffix += truncationSuffixConstant
	}

	switch result.Status {
	case StatusTimedOut:
		return fmt.Sprintf(genericTimeoutTemplateConstant, commandLabel, spec.Timeout(), suffix)
	case StatusInterrupted:
		return fmt.Sprintf(genericInterruptedTemplateConstant, commandLabel, suffix)
	default:
		if !result.HasExitCode() {
			return fmt.Sprintf(genericUnknownExitTemplateConstant, commandLabel, suffix)
		}
		return fmt.Sprintf(genericExitFailureTemplateConstant, commandLabel, *result.ExitCode, suffix)
	}
}

// formatStandardErrorSuffix quotes the last non-blank standard error line.
func (formatter CommandMessageFormatter) formatStandardErrorSuffix(result ExecutionResult) string {
	standardErrorLines := result.StreamTexts(StreamStandardError)
	for lineIndex := len(standardErrorLines) - 1; lineIndex >= 0; lineIndex-- {
		trimmedLine := strings.TrimSpace(standardErrorLines[lineIndex])
		if len(trimmedLine) > 0 {
			return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedLine)
		}
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) describeError(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}
