package execshell

import (
	"errors"
	"fmt"
)

const (
	launchErrorTemplateConstant        = "unable to launch %s: %v"
	commandFailedTemplateConstant      = "%s finished with status %s"
	commandFailedExitTemplateConstant  = "%s exited with code %d"
	unknownLaunchFailureMessage        = "unknown error"
	loggerNotConfiguredMessage         = "logger not configured"
	commandRunnerNotConfiguredMessage  = "command runner not configured"
	emptyArgumentsMessage              = "command arguments must not be empty"
	emptyExecutableMessage             = "command executable must not be blank"
	nonPositiveTimeoutMessage          = "command timeout must be positive"
	unsupportedEncodingMessage         = "unsupported output encoding"
	nonPositiveGracePeriodMessage      = "grace period must be positive"
	negativeLineLimitMessage           = "line limit must not be negative"
	inheritedEnvironmentMissingMessage = "inherited environment provider must not be nil"
)

var (
	// ErrLoggerNotConfigured indicates a nil logger was supplied.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessage)
	// ErrCommandRunnerNotConfigured indicates a nil runner was supplied.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessage)
	// ErrEmptyArguments indicates an empty argument vector.
	ErrEmptyArguments = errors.New(emptyArgumentsMessage)
	// ErrEmptyExecutable indicates the first argument is blank.
	ErrEmptyExecutable = errors.New(emptyExecutableMessage)
	// ErrNonPositiveTimeout indicates a missing or non-positive timeout.
	ErrNonPositiveTimeout = errors.New(nonPositiveTimeoutMessage)
	// ErrUnsupportedEncoding indicates the output encoding name is unknown.
	ErrUnsupportedEncoding = errors.New(unsupportedEncodingMessage)
	// ErrNonPositiveGracePeriod indicates an invalid drain or termination grace period.
	ErrNonPositiveGracePeriod = errors.New(nonPositiveGracePeriodMessage)
	// ErrNegativeLineLimit indicates an invalid per-stream line limit.
	ErrNegativeLineLimit = errors.New(negativeLineLimitMessage)
	// ErrInheritedEnvironmentMissing indicates a nil environment provider.
	ErrInheritedEnvironmentMissing = errors.New(inheritedEnvironmentMissingMessage)
)

// CommandLaunchError reports that the executable could not be started.
type CommandLaunchError struct {
	Command string
	Cause   error
}

// Error describes the launch failure.
func (launchError CommandLaunchError) Error() string {
	if launchError.Cause == nil {
		return fmt.Sprintf(launchErrorTemplateConstant, launchError.Command, unknownLaunchFailureMessage)
	}
	return fmt.Sprintf(launchErrorTemplateConstant, launchError.Command, launchError.Cause)
}

// Unwrap exposes the underlying cause.
func (launchError CommandLaunchError) Unwrap() error {
	return launchError.Cause
}

// CommandFailedError reports a command that did not complete with exit code zero.
type CommandFailedError struct {
	Command string
	Result  ExecutionResult
}

// Error describes the failure.
func (failedError CommandFailedError) Error() string {
	if failedError.Result.Status == StatusCompleted && failedError.Result.HasExitCode() {
		return fmt.Sprintf(commandFailedExitTemplateConstant, failedError.Command, *failedError.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedTemplateConstant, failedError.Command, failedError.Result.Status)
}
