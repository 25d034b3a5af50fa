package execshell

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

const (
	defaultDrainGracePeriodConstant       = 10 * time.Second
	defaultTerminationGracePeriodConstant = 5 * time.Second

	commandInvokedMessageConstant        = "command invoked"
	commandLaunchFailedMessageConstant   = "command launch failed"
	processExitedMessageConstant         = "process exited"
	processSignaledMessageConstant       = "process ended by signal"
	processTimedOutMessageConstant       = "process timed out"
	processInterruptedMessageConstant    = "process interrupted"
	processKillFailedMessageConstant     = "unable to kill process"
	processReapStalledMessageConstant    = "process did not exit after kill"
	drainAbandonedMessageConstant        = "stream drain abandoned"
	processWaitErrorMessageConstant      = "process wait returned an error"
	logFieldRunIdentifierConstant        = "run_id"
	logFieldArgumentsConstant            = "arguments"
	logFieldWorkingDirectoryConstant     = "working_directory"
	logFieldTimeoutConstant              = "timeout"
	logFieldExitCodeConstant             = "exit_code"
	logFieldStatusConstant               = "status"
	logFieldLineCountConstant            = "line_count"
	logFieldDurationConstant             = "duration"
	logFieldGracePeriodConstant          = "grace_period"
	logFieldProcessIdentifierConstant    = "pid"
	logFieldAbandonedStreamCountConstant = "abandoned_streams"
)

// CommandRunner executes a CommandSpec.
type CommandRunner interface {
	Run(executionContext context.Context, spec CommandSpec) (ExecutionResult, error)
}

// RunnerOption customizes a ProcessRunner.
type RunnerOption func(*ProcessRunner) error

// WithDrainGracePeriod bounds how long each drain is awaited after the process stops.
func WithDrainGracePeriod(gracePeriod time.Duration) RunnerOption {
	return func(runner *ProcessRunner) error {
		if gracePeriod <= 0 {
			return ErrNonPositiveGracePeriod
		}
		runner.drainGracePeriod = gracePeriod
		return nil
	}
}

// WithTerminationGracePeriod bounds how long a killed process is awaited.
func WithTerminationGracePeriod(gracePeriod time.Duration) RunnerOption {
	return func(runner *ProcessRunner) error {
		if gracePeriod <= 0 {
			return ErrNonPositiveGracePeriod
		}
		runner.terminationGracePeriod = gracePeriod
		return nil
	}
}

// WithOutputEncoding selects the text encoding used to decode both streams.
func WithOutputEncoding(name string) RunnerOption {
	return func(runner *ProcessRunner) error {
		resolvedEncoding, resolveError := ResolveEncoding(name)
		if resolveError != nil {
			return resolveError
		}
		runner.outputEncoding = resolvedEncoding
		return nil
	}
}

// WithLineLimit caps the number of lines kept per stream; zero keeps all lines.
func WithLineLimit(lineLimit int) RunnerOption {
	return func(runner *ProcessRunner) error {
		if lineLimit < 0 {
			return ErrNegativeLineLimit
		}
		runner.lineLimit = lineLimit
		return nil
	}
}

// WithInheritedEnvironment replaces the source of the inherited environment.
func WithInheritedEnvironment(provider func() []string) RunnerOption {
	return func(runner *ProcessRunner) error {
		if provider == nil {
			return ErrInheritedEnvironmentMissing
		}
		runner.inheritedEnvironment = provider
		return nil
	}
}

// ProcessRunner launches processes and captures their output. It holds no
// per-run state, so concurrent Run calls are safe.
type ProcessRunner struct {
	logger                 *zap.Logger
	drainGracePeriod       time.Duration
	terminationGracePeriod time.Duration
	outputEncoding         encoding.Encoding
	lineLimit              int
	inheritedEnvironment   func() []string
}

// NewProcessRunner constructs a runner with the supplied options applied over defaults.
func NewProcessRunner(logger *zap.Logger, options ...RunnerOption) (*ProcessRunner, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	defaultEncoding, _ := ResolveEncoding(defaultOutputEncodingConstant)
	runner := &ProcessRunner{
		logger:                 logger,
		drainGracePeriod:       defaultDrainGracePeriodConstant,
		terminationGracePeriod: defaultTerminationGracePeriodConstant,
		outputEncoding:         defaultEncoding,
		inheritedEnvironment:   os.Environ,
	}

	for _, option := range options {
		if option == nil {
			continue
		}
		if optionError := option(runner); optionError != nil {
			return nil, optionError
		}
	}

	return runner, nil
}

// processExit carries the outcome of cmd.Wait from the reaper goroutine. A negative
// exitCode means the process was ended by a signal.
type processExit struct {
	exitCode int
	waitErr  error
}

// Run launches the command and blocks until it exits, times out, or
// executionContext is cancelled. Only a launch failure yields a non-nil error;
// every other outcome is reported through ExecutionResult.Status.
func (runner *ProcessRunner) Run(executionContext context.Context, spec CommandSpec) (ExecutionResult, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}

	result := ExecutionResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	runLogger := runner.logger.With(zap.String(logFieldRunIdentifierConstant, result.RunID))

	runLogger.Debug(
		commandInvokedMessageConstant,
		zap.Strings(logFieldArgumentsConstant, spec.Arguments()),
		zap.String(logFieldWorkingDirectoryConstant, spec.WorkingDirectory()),
		zap.Duration(logFieldTimeoutConstant, spec.Timeout()),
	)

	if len(spec.Arguments()) == 0 {
		result.Status = StatusLaunchFailed
		return result, CommandLaunchError{Command: spec.String(), Cause: ErrEmptyArguments}
	}

	if contextError := executionContext.Err(); contextError != nil {
		result.Status = StatusInterrupted
		runLogger.Debug(processInterruptedMessageConstant, zap.Error(contextError))
		return result, nil
	}

	command, standardOutputReader, standardErrorReader, launchError := runner.launch(spec)
	if launchError != nil {
		result.Status = StatusLaunchFailed
		result.Duration = time.Since(result.StartedAt)
		runLogger.Debug(commandLaunchFailedMessageConstant, zap.Error(launchError))
		return result, CommandLaunchError{Command: spec.String(), Cause: launchError}
	}

	runLogger = runLogger.With(zap.Int(logFieldProcessIdentifierConstant, command.Process.Pid))

	standardErrorDrain := NewStreamDrain(StreamStandardError, standardErrorReader, runner.outputEncoding.NewDecoder(), runLogger, runner.lineLimit)
	standardOutputDrain := NewStreamDrain(StreamStandardOutput, standardOutputReader, runner.outputEncoding.NewDecoder(), runLogger, runner.lineLimit)
	standardErrorDrain.Start()
	standardOutputDrain.Start()

	exitChannel := make(chan processExit, 1)
	go func() {
		waitError := command.Wait()
		exitCode := -1
		if command.ProcessState != nil {
			exitCode = command.ProcessState.ExitCode()
		}
		exitChannel <- processExit{exitCode: exitCode, waitErr: waitError}
	}()

	deadlineTimer := time.NewTimer(spec.Timeout())
	defer deadlineTimer.Stop()

	drains := []*StreamDrain{standardErrorDrain, standardOutputDrain}

	select {
	case exit := <-exitChannel:
		result.Status = StatusCompleted
		if exit.waitErr != nil && !isExitError(exit.waitErr) {
			runLogger.Debug(processWaitErrorMessageConstant, zap.Error(exit.waitErr))
		}
		if exit.exitCode < 0 {
			runLogger.Debug(processSignaledMessageConstant, zap.Error(exit.waitErr))
		} else {
			result.ExitCode = exitCodePointer(exit.exitCode)
			runLogger.Debug(processExitedMessageConstant, zap.Int(logFieldExitCodeConstant, exit.exitCode))
		}
		result.AbandonedStreams = runner.settleDrains(runLogger, drains, false)
	case <-deadlineTimer.C:
		result.Status = StatusTimedOut
		runLogger.Debug(processTimedOutMessageConstant, zap.Duration(logFieldTimeoutConstant, spec.Timeout()))
		runner.terminate(runLogger, command, exitChannel, drains)
		result.AbandonedStreams = runner.settleDrains(runLogger, drains, true)
	case <-executionContext.Done():
		result.Status = StatusInterrupted
		runLogger.Debug(processInterruptedMessageConstant, zap.Error(executionContext.Err()))
		runner.terminate(runLogger, command, exitChannel, drains)
		result.AbandonedStreams = runner.settleDrains(runLogger, drains, true)
	}

	result.Lines = mergeCapturedLines(standardErrorDrain.Collected(), standardOutputDrain.Collected())
	result.Truncated = standardErrorDrain.Truncated() || standardOutputDrain.Truncated()
	result.Duration = time.Since(result.StartedAt)

	return result, nil
}

// launch starts the process with runner-owned pipes. The parent's copies of the
// write ends are closed after start so that end of stream follows the child's exit.
func (runner *ProcessRunner) launch(spec CommandSpec) (*exec.Cmd, *os.File, *os.File, error) {
	arguments := spec.Arguments()
	command := exec.Command(arguments[0], arguments[1:]...)
	command.Dir = spec.WorkingDirectory()
	command.Env = spec.MergedEnvironment(runner.inheritedEnvironment())

	standardOutputReader, standardOutputWriter, pipeError := os.Pipe()
	if pipeError != nil {
		return nil, nil, nil, pipeError
	}
	standardErrorReader, standardErrorWriter, pipeError := os.Pipe()
	if pipeError != nil {
		closeFiles(standardOutputReader, standardOutputWriter)
		return nil, nil, nil, pipeError
	}

	command.Stdout = standardOutputWriter
	command.Stderr = standardErrorWriter

	startError := command.Start()
	closeFiles(standardOutputWriter, standardErrorWriter)
	if startError != nil {
		closeFiles(standardOutputReader, standardErrorReader)
		return nil, nil, nil, startError
	}

	return command, standardOutputReader, standardErrorReader, nil
}

// terminate cancels the drains, kills the process, and waits a bounded time for
// it to be reaped.
func (runner *ProcessRunner) terminate(runLogger *zap.Logger, command *exec.Cmd, exitChannel <-chan processExit, drains []*StreamDrain) {
	for _, drain := range drains {
		drain.Cancel()
	}

	if killError := killProcess(command.Process); killError != nil {
		runLogger.Warn(processKillFailedMessageConstant, zap.Error(killError))
	}

	reapTimer := time.NewTimer(runner.terminationGracePeriod)
	defer reapTimer.Stop()

	select {
	case <-exitChannel:
	case <-reapTimer.C:
		runLogger.Warn(processReapStalledMessageConstant, zap.Duration(logFieldGracePeriodConstant, runner.terminationGracePeriod))
	}
}

// settleDrains joins every drain within the grace period and aborts the ones that
// miss it. When cancelFirst is false the drains are allowed to reach end of stream
// before stragglers are cancelled.
func (runner *ProcessRunner) settleDrains(runLogger *zap.Logger, drains []*StreamDrain, cancelFirst bool) []StreamName {
	if cancelFirst {
		for _, drain := range drains {
			drain.Cancel()
		}
	}

	joinDeadline := time.Now().Add(runner.drainGracePeriod)
	var abandonedStreams []StreamName
	for _, drain := range drains {
		if drain.Join(time.Until(joinDeadline)) {
			continue
		}
		drain.Abort()
		abandonedStreams = append(abandonedStreams, drain.Stream())
		runLogger.Warn(
			drainAbandonedMessageConstant,
			zap.Stringer(logFieldStreamConstant, drain.Stream()),
			zap.Duration(logFieldGracePeriodConstant, runner.drainGracePeriod),
		)
	}

	if len(abandonedStreams) > 0 {
		runLogger.Debug(drainAbandonedMessageConstant, zap.Int(logFieldAbandonedStreamCountConstant, len(abandonedStreams)))
	}

	return abandonedStreams
}

// killProcess force-terminates process. Killing a process that already exited is a no-op.
func killProcess(process *os.Process) error {
	if process == nil {
		return nil
	}
	if killError := process.Kill(); killError != nil && !errors.Is(killError, os.ErrProcessDone) {
		return killError
	}
	return nil
}

func isExitError(waitError error) bool {
	var exitError *exec.ExitError
	return errors.As(waitError, &exitError)
}

func closeFiles(files ...*os.File) {
	for _, file := range files {
		if file != nil {
			_ = file.Close()
		}
	}
}
