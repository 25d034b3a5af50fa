package execshell_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/platform"
)

const (
	testRunnerTimeoutConstant            = 20 * time.Second
	testRunnerShortTimeoutConstant       = 300 * time.Millisecond
	testRunnerDrainGraceConstant         = 500 * time.Millisecond
	testRunnerTerminationGraceConstant   = 500 * time.Millisecond
	testRunnerElapsedSlackConstant       = 2 * time.Second
	testRunnerEnvironmentKeyConstant     = "testVar"
	testRunnerEnvironmentValueConstant   = "testOs.var"
	testRunnerMissingExecutableConstant  = "execrun-missing-binary-xyz"
	testRunnerLargeLineCountConstant     = 20000
	testRunnerConcurrentRunCountConstant = 8
)

func skipWithoutPosixShell(testInstance *testing.T) {
	testInstance.Helper()
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}
}

func newTestProcessRunner(testInstance *testing.T, logger *zap.Logger, options ...execshell.RunnerOption) *execshell.ProcessRunner {
	testInstance.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := []execshell.RunnerOption{
		execshell.WithDrainGracePeriod(testRunnerDrainGraceConstant),
		execshell.WithTerminationGracePeriod(testRunnerTerminationGraceConstant),
	}
	runner, runnerError := execshell.NewProcessRunner(logger, append(defaults, options...)...)
	require.NoError(testInstance, runnerError)
	return runner
}

func newShellSpec(testInstance *testing.T, script string, timeout time.Duration, options ...execshell.CommandSpecOption) execshell.CommandSpec {
	testInstance.Helper()
	spec, specError := execshell.NewCommandSpec(platform.Linux.ShellArguments(script), append([]execshell.CommandSpecOption{execshell.WithTimeout(timeout)}, options...)...)
	require.NoError(testInstance, specError)
	return spec
}

func TestNewProcessRunnerValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		options       []execshell.RunnerOption
		expectedError error
	}{
		{name: "nil_logger", logger: nil, expectedError: execshell.ErrLoggerNotConfigured},
		{name: "zero_drain_grace", logger: zap.NewNop(), options: []execshell.RunnerOption{execshell.WithDrainGracePeriod(0)}, expectedError: execshell.ErrNonPositiveGracePeriod},
		{name: "zero_termination_grace", logger: zap.NewNop(), options: []execshell.RunnerOption{execshell.WithTerminationGracePeriod(0)}, expectedError: execshell.ErrNonPositiveGracePeriod},
		{name: "unknown_encoding", logger: zap.NewNop(), options: []execshell.RunnerOption{execshell.WithOutputEncoding("klingon-8")}, expectedError: execshell.ErrUnsupportedEncoding},
		{name: "negative_line_limit", logger: zap.NewNop(), options: []execshell.RunnerOption{execshell.WithLineLimit(-1)}, expectedError: execshell.ErrNegativeLineLimit},
		{name: "nil_environment_provider", logger: zap.NewNop(), options: []execshell.RunnerOption{execshell.WithInheritedEnvironment(nil)}, expectedError: execshell.ErrInheritedEnvironmentMissing},
		{name: "valid_options", logger: zap.NewNop(), options: []execshell.RunnerOption{execshell.WithOutputEncoding("windows-1252"), execshell.WithLineLimit(10), nil}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			runner, runnerError := execshell.NewProcessRunner(testCase.logger, testCase.options...)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, runnerError, testCase.expectedError)
				require.Nil(testInstance, runner)
				return
			}
			require.NoError(testInstance, runnerError)
			require.NotNil(testInstance, runner)
		})
	}
}

func TestProcessRunnerReportsExitCodes(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	for _, exitCode := range []int{0, 1, 3, 42} {
		testInstance.Run(strconv.Itoa(exitCode), func(testInstance *testing.T) {
			result, runError := runner.Run(context.Background(), newShellSpec(testInstance, fmt.Sprintf("exit %d", exitCode), testRunnerTimeoutConstant))
			require.NoError(testInstance, runError)
			require.Equal(testInstance, execshell.StatusCompleted, result.Status)
			require.True(testInstance, result.HasExitCode())
			require.Equal(testInstance, exitCode, *result.ExitCode)
			require.NotEmpty(testInstance, result.RunID)
			require.Empty(testInstance, result.AbandonedStreams)
		})
	}
}

func TestProcessRunnerOmitsExitCodeForSignalledProcess(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	result, runError := runner.Run(context.Background(), newShellSpec(testInstance, "echo before; kill -9 $$", testRunnerTimeoutConstant))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, execshell.StatusCompleted, result.Status)
	require.False(testInstance, result.HasExitCode())
	require.Nil(testInstance, result.ExitCode)
	require.False(testInstance, result.Succeeded())
	require.Equal(testInstance, []string{"before"}, result.Texts())
}

func TestProcessRunnerMergesStandardErrorBeforeStandardOutput(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	spec := newShellSpec(testInstance, "printf 'a\\nb\\nc\\n'; printf 'x\\ny\\n' >&2; printf 'd\\n'", testRunnerTimeoutConstant)
	result, runError := runner.Run(context.Background(), spec)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, execshell.StatusCompleted, result.Status)
	require.Equal(testInstance, []string{"x", "y", "a", "b", "c", "d"}, result.Texts())
	require.Equal(testInstance, execshell.StreamStandardError, result.Lines[0].Stream)
	require.Equal(testInstance, 1, result.Lines[1].Sequence)
	require.Equal(testInstance, execshell.StreamStandardOutput, result.Lines[2].Stream)
	require.Equal(testInstance, 0, result.Lines[2].Sequence)
}

func TestProcessRunnerDrainsOutputLargerThanPipeBuffers(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	script := fmt.Sprintf("seq 1 %d; seq 1 %d >&2; seq 1 %d", testRunnerLargeLineCountConstant, testRunnerLargeLineCountConstant, testRunnerLargeLineCountConstant)
	result, runError := runner.Run(context.Background(), newShellSpec(testInstance, script, testRunnerTimeoutConstant))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, execshell.StatusCompleted, result.Status)
	require.Equal(testInstance, 0, *result.ExitCode)

	standardOutputLines := result.StreamTexts(execshell.StreamStandardOutput)
	standardErrorLines := result.StreamTexts(execshell.StreamStandardError)
	require.Len(testInstance, standardOutputLines, 2*testRunnerLargeLineCountConstant)
	require.Len(testInstance, standardErrorLines, testRunnerLargeLineCountConstant)
	require.Len(testInstance, result.Lines, 3*testRunnerLargeLineCountConstant)
	require.Equal(testInstance, "1", standardErrorLines[0])
	require.Equal(testInstance, strconv.Itoa(testRunnerLargeLineCountConstant), standardErrorLines[len(standardErrorLines)-1])
	require.Equal(testInstance, strconv.Itoa(testRunnerLargeLineCountConstant), standardOutputLines[testRunnerLargeLineCountConstant-1])
	require.Equal(testInstance, "1", standardOutputLines[testRunnerLargeLineCountConstant])
}

func TestProcessRunnerTimesOut(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	startedAt := time.Now()
	result, runError := runner.Run(context.Background(), newShellSpec(testInstance, "echo before; exec sleep 30", testRunnerShortTimeoutConstant))
	elapsed := time.Since(startedAt)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, execshell.StatusTimedOut, result.Status)
	require.False(testInstance, result.HasExitCode())
	require.Equal(testInstance, []string{"before"}, result.Texts())
	require.Less(testInstance, elapsed, testRunnerShortTimeoutConstant+testRunnerTerminationGraceConstant+testRunnerDrainGraceConstant+testRunnerElapsedSlackConstant)
}

func TestProcessRunnerAbandonsDrainsHeldOpenByDescendants(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	startedAt := time.Now()
	result, runError := runner.Run(context.Background(), newShellSpec(testInstance, "echo started; sleep 30 & exit 0", testRunnerTimeoutConstant))
	elapsed := time.Since(startedAt)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, execshell.StatusCompleted, result.Status)
	require.Equal(testInstance, 0, *result.ExitCode)
	require.Equal(testInstance, []string{"started"}, result.Texts())
	require.ElementsMatch(testInstance, []execshell.StreamName{execshell.StreamStandardError, execshell.StreamStandardOutput}, result.AbandonedStreams)
	require.Less(testInstance, elapsed, testRunnerDrainGraceConstant+testRunnerElapsedSlackConstant)
}

func TestProcessRunnerAppliesEnvironmentOverlay(testInstance *testing.T) {
	hostPlatform := platform.Detect()
	if hostPlatform != platform.Windows {
		skipWithoutPosixShell(testInstance)
	}
	runner := newTestProcessRunner(testInstance, nil)

	spec, specError := execshell.NewCommandSpec(
		hostPlatform.ShellArguments("echo "+hostPlatform.EnvironmentReference(testRunnerEnvironmentKeyConstant)),
		execshell.WithTimeout(testRunnerTimeoutConstant),
		execshell.WithWorkingDirectory("."),
		execshell.WithEnvironment(map[string]string{testRunnerEnvironmentKeyConstant: testRunnerEnvironmentValueConstant}),
	)
	require.NoError(testInstance, specError)

	result, runError := runner.Run(context.Background(), spec)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, 0, *result.ExitCode)
	require.Equal(testInstance, []string{testRunnerEnvironmentValueConstant}, result.Texts())
}

func TestProcessRunnerOverlayWinsOverInheritedEnvironment(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil, execshell.WithInheritedEnvironment(func() []string {
		return append(os.Environ(), testRunnerEnvironmentKeyConstant+"=inherited", "UNTOUCHED=kept")
	}))

	spec := newShellSpec(
		testInstance,
		"echo $testVar; echo $UNTOUCHED",
		testRunnerTimeoutConstant,
		execshell.WithEnvironment(map[string]string{testRunnerEnvironmentKeyConstant: "overlay"}),
	)
	result, runError := runner.Run(context.Background(), spec)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"overlay", "kept"}, result.Texts())
}

func TestProcessRunnerUsesWorkingDirectory(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)
	workingDirectory := testInstance.TempDir()

	result, runError := runner.Run(context.Background(), newShellSpec(testInstance, "pwd -P", testRunnerTimeoutConstant, execshell.WithWorkingDirectory(workingDirectory)))
	require.NoError(testInstance, runError)

	expectedDirectory, resolveError := filepath.EvalSymlinks(workingDirectory)
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, []string{expectedDirectory}, result.Texts())
}

func TestProcessRunnerReportsLaunchFailure(testInstance *testing.T) {
	runner := newTestProcessRunner(testInstance, nil)

	spec, specError := execshell.NewCommandSpec([]string{testRunnerMissingExecutableConstant}, execshell.WithTimeout(testRunnerTimeoutConstant))
	require.NoError(testInstance, specError)

	result, runError := runner.Run(context.Background(), spec)

	require.Error(testInstance, runError)
	require.True(testInstance, execshell.IsLaunchFailure(runError))
	var launchError execshell.CommandLaunchError
	require.True(testInstance, errors.As(runError, &launchError))
	require.Contains(testInstance, launchError.Error(), testRunnerMissingExecutableConstant)
	require.Equal(testInstance, execshell.StatusLaunchFailed, result.Status)
	require.False(testInstance, result.HasExitCode())
	require.Empty(testInstance, result.Lines)
}

func TestProcessRunnerReportsLaunchFailureForZeroSpec(testInstance *testing.T) {
	runner := newTestProcessRunner(testInstance, nil)

	result, runError := runner.Run(context.Background(), execshell.CommandSpec{})

	require.ErrorIs(testInstance, runError, execshell.ErrEmptyArguments)
	require.Equal(testInstance, execshell.StatusLaunchFailed, result.Status)
}

func TestProcessRunnerReportsInterruption(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	executionContext, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	startedAt := time.Now()
	result, runError := runner.Run(executionContext, newShellSpec(testInstance, "echo partial; exec sleep 30", testRunnerTimeoutConstant))
	elapsed := time.Since(startedAt)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, execshell.StatusInterrupted, result.Status)
	require.False(testInstance, result.HasExitCode())
	require.Equal(testInstance, []string{"partial"}, result.Texts())
	require.Less(testInstance, elapsed, testRunnerTimeoutConstant)
}

func TestProcessRunnerSkipsLaunchWhenContextAlreadyCancelled(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	executionContext, cancel := context.WithCancel(context.Background())
	cancel()

	result, runError := runner.Run(executionContext, newShellSpec(testInstance, "echo never", testRunnerTimeoutConstant))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, execshell.StatusInterrupted, result.Status)
	require.Empty(testInstance, result.Lines)
}

func TestProcessRunnerAppliesLineLimit(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil, execshell.WithLineLimit(10))

	result, runError := runner.Run(context.Background(), newShellSpec(testInstance, "seq 1 100", testRunnerTimeoutConstant))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, 0, *result.ExitCode)
	require.Len(testInstance, result.Lines, 10)
	require.True(testInstance, result.Truncated)
}

func TestProcessRunnerEchoesLinesToDiagnosticLog(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	observerCore, observedLogs := observer.New(zap.DebugLevel)
	runner := newTestProcessRunner(testInstance, zap.New(observerCore))

	_, runError := runner.Run(context.Background(), newShellSpec(testInstance, "echo one; echo two >&2", testRunnerTimeoutConstant))
	require.NoError(testInstance, runError)

	require.Equal(testInstance, 2, observedLogs.FilterMessage("captured line").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("command invoked").Len())
	exitEntries := observedLogs.FilterMessage("process exited").All()
	require.Len(testInstance, exitEntries, 1)
	require.EqualValues(testInstance, 0, exitEntries[0].ContextMap()["exit_code"])
}

func TestProcessRunnerSupportsConcurrentRuns(testInstance *testing.T) {
	skipWithoutPosixShell(testInstance)
	runner := newTestProcessRunner(testInstance, nil)

	results := make([]execshell.ExecutionResult, testRunnerConcurrentRunCountConstant)
	runErrors := make([]error, testRunnerConcurrentRunCountConstant)

	var waitGroup sync.WaitGroup
	for runIndex := 0; runIndex < testRunnerConcurrentRunCountConstant; runIndex++ {
		waitGroup.Add(1)
		go func(runIndex int) {
			defer waitGroup.Done()
			script := fmt.Sprintf("echo out-%d; echo err-%d >&2; exit %d", runIndex, runIndex, runIndex)
			spec, specError := execshell.NewCommandSpec(platform.Linux.ShellArguments(script), execshell.WithTimeout(testRunnerTimeoutConstant))
			if specError != nil {
				runErrors[runIndex] = specError
				return
			}
			results[runIndex], runErrors[runIndex] = runner.Run(context.Background(), spec)
		}(runIndex)
	}
	waitGroup.Wait()

	for runIndex := 0; runIndex < testRunnerConcurrentRunCountConstant; runIndex++ {
		require.NoError(testInstance, runErrors[runIndex])
		require.Equal(testInstance, runIndex, *results[runIndex].ExitCode)
		require.Equal(testInstance, []string{fmt.Sprintf("err-%d", runIndex), fmt.Sprintf("out-%d", runIndex)}, results[runIndex].Texts())
	}
}
