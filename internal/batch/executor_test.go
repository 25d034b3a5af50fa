package batch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/execrun/internal/batch"
	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/platform"
	"github.com/temirov/execrun/internal/utils"
)

type scriptedCommandExecutor struct {
	mutex         sync.Mutex
	recordedSpecs []execshell.CommandSpec
	active        atomic.Int32
	peakActive    atomic.Int32
	delays        map[string]time.Duration
	exitCodes     map[string]int
	launchErrors  map[string]error
}

func (executor *scriptedCommandExecutor) Execute(executionContext context.Context, spec execshell.CommandSpec) (execshell.ExecutionResult, error) {
	activeCount := executor.active.Add(1)
	defer executor.active.Add(-1)
	for {
		peak := executor.peakActive.Load()
		if activeCount <= peak || executor.peakActive.CompareAndSwap(peak, activeCount) {
			break
		}
	}

	executor.mutex.Lock()
	executor.recordedSpecs = append(executor.recordedSpecs, spec)
	executor.mutex.Unlock()

	label := strings.Join(spec.Arguments(), " ")
	time.Sleep(executor.delays[label])

	if launchError, failing := executor.launchErrors[label]; failing {
		return execshell.ExecutionResult{RunID: "run-" + label, Status: execshell.StatusLaunchFailed}, launchError
	}
	exitCode := executor.exitCodes[label]
	return execshell.ExecutionResult{RunID: "run-" + label, Status: execshell.StatusCompleted, ExitCode: &exitCode}, nil
}

type recordingResultRecorder struct {
	mutex      sync.Mutex
	runIDs     []string
	batchNames []string
}

func (recorder *recordingResultRecorder) Record(executionContext context.Context, spec execshell.CommandSpec, result execshell.ExecutionResult) error {
	batchName, _ := utils.NewCommandContextAccessor().BatchName(executionContext)
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.runIDs = append(recorder.runIDs, result.RunID)
	recorder.batchNames = append(recorder.batchNames, batchName)
	return nil
}

func TestNewExecutorRequiresCommandExecutor(testInstance *testing.T) {
	_, creationError := batch.NewExecutor(batch.Dependencies{})
	require.ErrorIs(testInstance, creationError, batch.ErrExecutorNotConfigured)
}

func TestExecutorPreservesManifestOrder(testInstance *testing.T) {
	commandExecutor := &scriptedCommandExecutor{
		delays: map[string]time.Duration{"first": 60 * time.Millisecond, "second": 30 * time.Millisecond},
	}
	recorder := &recordingResultRecorder{}
	executor, creationError := batch.NewExecutor(batch.Dependencies{
		Logger:          zap.NewNop(),
		CommandExecutor: commandExecutor,
		Recorder:        recorder,
	})
	require.NoError(testInstance, creationError)

	manifest := batch.Manifest{
		Name:        "ordered",
		Concurrency: 3,
		Commands: []batch.Entry{
			{Name: "one", Command: []string{"first"}},
			{Name: "two", Command: []string{"second"}},
			{Name: "three", Command: []string{"third"}},
		},
	}

	entryResults, executionError := executor.Execute(context.Background(), manifest)
	require.NoError(testInstance, executionError)
	require.Len(testInstance, entryResults, 3)
	require.Equal(testInstance, "one", entryResults[0].Name)
	require.Equal(testInstance, "run-first", entryResults[0].Result.RunID)
	require.Equal(testInstance, "two", entryResults[1].Name)
	require.Equal(testInstance, "run-second", entryResults[1].Result.RunID)
	require.Equal(testInstance, "three", entryResults[2].Name)
	require.Equal(testInstance, "run-third", entryResults[2].Result.RunID)

	require.ElementsMatch(testInstance, []string{"run-first", "run-second", "run-third"}, recorder.runIDs)
	require.Equal(testInstance, []string{"ordered", "ordered", "ordered"}, recorder.batchNames)
}

func TestExecutorHonorsConcurrencyLimit(testInstance *testing.T) {
	commandExecutor := &scriptedCommandExecutor{delays: map[string]time.Duration{}}
	commands := make([]batch.Entry, 0, 6)
	for _, label := range []string{"a", "b", "c", "d", "e", "f"} {
		commandExecutor.delays[label] = 40 * time.Millisecond
		commands = append(commands, batch.Entry{Name: label, Command: []string{label}})
	}

	executor, creationError := batch.NewExecutor(batch.Dependencies{CommandExecutor: commandExecutor})
	require.NoError(testInstance, creationError)

	_, executionError := executor.Execute(context.Background(), batch.Manifest{Concurrency: 2, Commands: commands})
	require.NoError(testInstance, executionError)
	require.LessOrEqual(testInstance, commandExecutor.peakActive.Load(), int32(2))
	require.Len(testInstance, commandExecutor.recordedSpecs, 6)
}

func TestExecutorAppliesDefaultsAndOverrides(testInstance *testing.T) {
	commandExecutor := &scriptedCommandExecutor{}
	executor, creationError := batch.NewExecutor(batch.Dependencies{
		CommandExecutor: commandExecutor,
		Platform:        platform.Linux,
		DefaultTimeout:  time.Minute,
	})
	require.NoError(testInstance, creationError)

	manifest := batch.Manifest{
		Timeout:     10 * time.Second,
		Directory:   "/srv",
		Environment: map[string]string{"SHARED": "manifest", "OVERRIDDEN": "manifest"},
		Commands: []batch.Entry{
			{Name: "script", Script: "echo hi", Timeout: 2 * time.Second, Environment: map[string]string{"OVERRIDDEN": "entry"}},
			{Name: "command", Command: []string{"ls"}, Directory: "/tmp"},
		},
	}

	entryResults, executionError := executor.Execute(context.Background(), manifest)
	require.NoError(testInstance, executionError)

	scriptSpec := entryResults[0].Spec
	require.Equal(testInstance, []string{"/bin/sh", "-c", "echo hi"}, scriptSpec.Arguments())
	require.Equal(testInstance, 2*time.Second, scriptSpec.Timeout())
	require.Equal(testInstance, "/srv", scriptSpec.WorkingDirectory())
	require.Equal(testInstance, map[string]string{"SHARED": "manifest", "OVERRIDDEN": "entry"}, scriptSpec.EnvironmentOverlay())

	commandSpec := entryResults[1].Spec
	require.Equal(testInstance, 10*time.Second, commandSpec.Timeout())
	require.Equal(testInstance, "/tmp", commandSpec.WorkingDirectory())
}

func TestExecutorReportsFailedEntries(testInstance *testing.T) {
	launchError := execshell.CommandLaunchError{Command: "missing", Cause: errors.New("not found")}
	commandExecutor := &scriptedCommandExecutor{
		exitCodes:    map[string]int{"broken": 2},
		launchErrors: map[string]error{"missing": launchError},
	}
	executor, creationError := batch.NewExecutor(batch.Dependencies{CommandExecutor: commandExecutor, DefaultConcurrency: 4})
	require.NoError(testInstance, creationError)

	manifest := batch.Manifest{Commands: []batch.Entry{
		{Name: "ok", Command: []string{"fine"}},
		{Name: "exit", Command: []string{"broken"}},
		{Name: "launch", Command: []string{"missing"}},
	}}

	entryResults, executionError := executor.Execute(context.Background(), manifest)

	var failedError batch.FailedError
	require.ErrorAs(testInstance, executionError, &failedError)
	require.Equal(testInstance, 2, failedError.FailedCount)
	require.Equal(testInstance, 3, failedError.TotalCount)
	require.Equal(testInstance, "2 of 3 batch commands failed", failedError.Error())

	require.True(testInstance, entryResults[0].Succeeded())
	require.False(testInstance, entryResults[1].Succeeded())
	require.NoError(testInstance, entryResults[1].Err)
	require.False(testInstance, entryResults[2].Succeeded())
	require.True(testInstance, execshell.IsLaunchFailure(entryResults[2].Err))
}
