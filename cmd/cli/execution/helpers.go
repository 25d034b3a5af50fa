package execution

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/history"
	"github.com/temirov/execrun/internal/ui"
)

const (
	exitCodeLaunchFailedConstant          = 127
	exitCodeTimedOutConstant              = 124
	exitCodeInterruptedConstant           = 130
	exitCodeUnknownConstant               = 1
	exitStatusErrorTemplateConstant       = "command finished with status %s and exit code %d"
	runnerCreationErrorTemplateConstant   = "unable to construct process runner: %w"
	executorCreationErrorTemplateConstant = "unable to construct shell executor: %w"
	historyOpenErrorTemplateConstant      = "unable to open run history: %w"
	historyMigrateErrorTemplateConstant   = "unable to prepare run history: %w"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ExitStatusError carries the process exit code the CLI should terminate with.
type ExitStatusError struct {
	Code   int
	Status execshell.ExecutionStatus
}

// Error describes the exit status.
func (exitError ExitStatusError) Error() string {
	return fmt.Sprintf(exitStatusErrorTemplateConstant, exitError.Status, exitError.Code)
}

// ExitCode extracts the exit code carried by err.
func ExitCode(err error) (int, bool) {
	var exitError ExitStatusError
	if errors.As(err, &exitError) {
		return exitError.Code, true
	}
	return 0, false
}

// ExitCodeForResult maps an execution outcome to a CLI exit code: the child's code
// when it completed, 124 for a timeout, 130 for an interruption, and 127 when the
// executable could not be launched.
func ExitCodeForResult(result execshell.ExecutionResult) int {
	switch result.Status {
	case execshell.StatusCompleted:
		return result.ExitCodeOrDefault(exitCodeUnknownConstant)
	case execshell.StatusTimedOut:
		return exitCodeTimedOutConstant
	case execshell.StatusInterrupted:
		return exitCodeInterruptedConstant
	case execshell.StatusLaunchFailed:
		return exitCodeLaunchFailedConstant
	default:
		return exitCodeUnknownConstant
	}
}

// BuildShellExecutor wires a ProcessRunner and ShellExecutor from configuration. In
// human-readable mode lifecycle messages go through the console event logger and
// the executor's structured entries are suppressed.
func BuildShellExecutor(logger *zap.Logger, configuration execshell.Configuration, humanReadableLogging bool) (*execshell.ShellExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	runner, runnerError := execshell.NewProcessRunner(logger, configuration.RunnerOptions()...)
	if runnerError != nil {
		return nil, fmt.Errorf(runnerCreationErrorTemplateConstant, runnerError)
	}

	executorLogger := logger
	var observers []execshell.CommandEventObserver
	if humanReadableLogging {
		executorLogger = zap.NewNop()
		observers = append(observers, ui.NewConsoleCommandEventLogger(logger))
	}

	shellExecutor, executorError := execshell.NewShellExecutor(executorLogger, runner, observers...)
	if executorError != nil {
		return nil, fmt.Errorf(executorCreationErrorTemplateConstant, executorError)
	}
	return shellExecutor, nil
}

// OpenHistoryStore opens and migrates the history database. The returned closer
// releases the database handle.
func OpenHistoryStore(configuration history.Configuration, logger *zap.Logger) (*history.Store, func() error, error) {
	database, openError := history.Open(configuration.ResolvedPath())
	if openError != nil {
		return nil, nil, fmt.Errorf(historyOpenErrorTemplateConstant, openError)
	}

	if _, migrateError := history.Migrate(database, logger); migrateError != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf(historyMigrateErrorTemplateConstant, migrateError)
	}

	store, storeError := history.NewStore(database, logger)
	if storeError != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf(historyOpenErrorTemplateConstant, storeError)
	}

	return store, database.Close, nil
}

// ResolveLogger returns the provided logger or a no-op logger.
func ResolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func displayCommandHelp(command *cobra.Command) error {
	if command == nil {
		return nil
	}
	return command.Help()
}
