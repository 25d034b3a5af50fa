package execshell

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/temirov/execrun/internal/platform"
)

const (
	logFieldCommandConstant   = "command"
	logFieldTruncatedConstant = "truncated"
)

// ShellExecutor runs commands through a CommandRunner with logging and event notifications.
type ShellExecutor struct {
	logger    *zap.Logger
	runner    CommandRunner
	observer  CommandEventObserver
	formatter CommandMessageFormatter
}

// NewShellExecutor validates collaborators and builds a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, observers ...CommandEventObserver) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		logger:    logger,
		runner:    runner,
		observer:  newObserverGroup(observers),
		formatter: CommandMessageFormatter{},
	}, nil
}

// Execute runs spec and returns its result. Only launch failures are returned as errors.
func (executor *ShellExecutor) Execute(executionContext context.Context, spec CommandSpec) (ExecutionResult, error) {
	executor.logger.Info(
		executor.formatter.BuildStartedMessage(spec),
		zap.String(logFieldCommandConstant, spec.String()),
		zap.Duration(logFieldTimeoutConstant, spec.Timeout()),
	)
	executor.observer.CommandStarted(spec)

	result, runError := executor.runner.Run(executionContext, spec)
	if runError != nil {
		executor.logger.Error(
			executor.formatter.BuildExecutionFailureMessage(spec, runError),
			zap.String(logFieldCommandConstant, spec.String()),
			zap.Error(runError),
		)
		executor.observer.CommandExecutionFailed(spec, runError)
		return result, runError
	}

	logFields := []zap.Field{
		zap.String(logFieldCommandConstant, spec.String()),
		zap.String(logFieldRunIdentifierConstant, result.RunID),
		zap.Stringer(logFieldStatusConstant, result.Status),
		zap.Int(logFieldLineCountConstant, len(result.Lines)),
		zap.Duration(logFieldDurationConstant, result.Duration),
		zap.Bool(logFieldTruncatedConstant, result.Truncated),
	}
	if result.HasExitCode() {
		logFields = append(logFields, zap.Int(logFieldExitCodeConstant, *result.ExitCode))
	}

	if result.Succeeded() {
		executor.logger.Info(executor.formatter.BuildSuccessMessage(spec), logFields...)
	} else {
		executor.logger.Warn(executor.formatter.BuildFailureMessage(spec, result), logFields...)
	}
	executor.observer.CommandCompleted(spec, result)

	return result, nil
}

// ExecuteChecked runs spec and reports any outcome other than a zero exit code as a CommandFailedError.
func (executor *ShellExecutor) ExecuteChecked(executionContext context.Context, spec CommandSpec) (ExecutionResult, error) {
	result, executionError := executor.Execute(executionContext, spec)
	if executionError != nil {
		return result, executionError
	}
	if !result.Succeeded() {
		return result, CommandFailedError{Command: spec.String(), Result: result}
	}
	return result, nil
}

// ExecuteScript runs script through the command interpreter of targetPlatform.
func (executor *ShellExecutor) ExecuteScript(executionContext context.Context, targetPlatform platform.Platform, script string, options ...CommandSpecOption) (ExecutionResult, error) {
	spec, specError := NewCommandSpec(targetPlatform.ShellArguments(script), options...)
	if specError != nil {
		return ExecutionResult{Status: StatusLaunchFailed}, specError
	}
	return executor.Execute(executionContext, spec)
}

// IsLaunchFailure reports whether err describes a command that could not be started.
func IsLaunchFailure(err error) bool {
	var launchError CommandLaunchError
	return errors.As(err, &launchError)
}
