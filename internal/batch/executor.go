package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/platform"
	"github.com/temirov/execrun/internal/utils"
	pathutils "github.com/temirov/execrun/internal/utils/path"
)

const (
	defaultBatchConcurrencyConstant     = 1
	defaultBatchTimeoutConstant         = 30 * time.Second
	batchFailedTemplateConstant         = "%d of %d batch commands failed"
	entrySpecErrorTemplateConstant      = "batch command %s: %w"
	entryRecordErrorMessageConstant     = "unable to record batch command"
	batchStartedMessageConstant         = "batch started"
	batchFinishedMessageConstant        = "batch finished"
	logFieldBatchNameConstant           = "batch"
	logFieldEntryNameConstant           = "entry"
	logFieldCommandCountConstant        = "command_count"
	logFieldConcurrencyConstant         = "concurrency"
	logFieldFailedCountConstant         = "failed_count"
	executorDependenciesMessageConstant = "batch executor requires a command executor"
)

// ErrExecutorNotConfigured indicates the executor was built without a command executor.
var ErrExecutorNotConfigured = errors.New(executorDependenciesMessageConstant)

// CommandExecutor runs a single command. execshell.ShellExecutor satisfies it.
type CommandExecutor interface {
	Execute(executionContext context.Context, spec execshell.CommandSpec) (execshell.ExecutionResult, error)
}

// ResultRecorder persists finished runs. history.Store satisfies it.
type ResultRecorder interface {
	Record(executionContext context.Context, spec execshell.CommandSpec, result execshell.ExecutionResult) error
}

// Dependencies configures collaborators for batch execution.
type Dependencies struct {
	Logger             *zap.Logger
	CommandExecutor    CommandExecutor
	Recorder           ResultRecorder
	Platform           platform.Platform
	DefaultTimeout     time.Duration
	DefaultConcurrency int
}

// EntryResult pairs a manifest entry with its outcome.
type EntryResult struct {
	Name   string
	Spec   execshell.CommandSpec
	Result execshell.ExecutionResult
	Err    error
}

// Succeeded reports whether the entry launched and exited with code zero.
func (entryResult EntryResult) Succeeded() bool {
	return entryResult.Err == nil && entryResult.Result.Succeeded()
}

// FailedError summarizes a batch in which at least one entry did not succeed.
type FailedError struct {
	FailedCount int
	TotalCount  int
}

// Error describes the failure.
func (failedError FailedError) Error() string {
	return fmt.Sprintf(batchFailedTemplateConstant, failedError.FailedCount, failedError.TotalCount)
}

// Executor runs manifests.
type Executor struct {
	dependencies    Dependencies
	contextAccessor utils.CommandContextAccessor
}

// NewExecutor validates dependencies and applies defaults.
func NewExecutor(dependencies Dependencies) (*Executor, error) {
	if dependencies.CommandExecutor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Platform == platform.Unknown {
		dependencies.Platform = platform.Detect()
	}
	if dependencies.DefaultTimeout <= 0 {
		dependencies.DefaultTimeout = defaultBatchTimeoutConstant
	}
	if dependencies.DefaultConcurrency <= 0 {
		dependencies.DefaultConcurrency = defaultBatchConcurrencyConstant
	}
	return &Executor{dependencies: dependencies, contextAccessor: utils.NewCommandContextAccessor()}, nil
}

// Execute runs every manifest entry with bounded concurrency. Results follow
// manifest order regardless of completion order. A FailedError is returned when
// any entry failed to launch or did not exit with code zero.
func (executor *Executor) Execute(executionContext context.Context, manifest Manifest) ([]EntryResult, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}
	if len(manifest.Name) > 0 {
		executionContext = executor.contextAccessor.WithBatchName(executionContext, manifest.Name)
	}

	concurrency := executor.dependencies.DefaultConcurrency
	if manifest.Concurrency > 0 {
		concurrency = manifest.Concurrency
	}

	logger := executor.dependencies.Logger.With(zap.String(logFieldBatchNameConstant, manifest.Name))
	logger.Info(batchStartedMessageConstant, zap.Int(logFieldCommandCountConstant, len(manifest.Commands)), zap.Int(logFieldConcurrencyConstant, concurrency))

	entryResults := make([]EntryResult, len(manifest.Commands))

	var group errgroup.Group
	group.SetLimit(concurrency)
	for entryIndex, entry := range manifest.Commands {
		group.Go(func() error {
			entryResults[entryIndex] = executor.executeEntry(executionContext, logger, manifest, entryIndex, entry)
			return nil
		})
	}
	_ = group.Wait()

	failedCount := 0
	for _, entryResult := range entryResults {
		if !entryResult.Succeeded() {
			failedCount++
		}
	}
	logger.Info(batchFinishedMessageConstant, zap.Int(logFieldCommandCountConstant, len(entryResults)), zap.Int(logFieldFailedCountConstant, failedCount))

	if failedCount > 0 {
		return entryResults, FailedError{FailedCount: failedCount, TotalCount: len(entryResults)}
	}
	return entryResults, nil
}

func (executor *Executor) executeEntry(executionContext context.Context, logger *zap.Logger, manifest Manifest, entryIndex int, entry Entry) EntryResult {
	entryResult := EntryResult{Name: entry.Label(entryIndex)}

	spec, specError := executor.buildSpec(manifest, entry)
	if specError != nil {
		entryResult.Result = execshell.ExecutionResult{Status: execshell.StatusLaunchFailed}
		entryResult.Err = fmt.Errorf(entrySpecErrorTemplateConstant, entryResult.Name, specError)
		return entryResult
	}
	entryResult.Spec = spec

	entryResult.Result, entryResult.Err = executor.dependencies.CommandExecutor.Execute(executionContext, spec)

	if executor.dependencies.Recorder != nil && len(entryResult.Result.RunID) > 0 {
		if recordError := executor.dependencies.Recorder.Record(context.WithoutCancel(executionContext), spec, entryResult.Result); recordError != nil {
			logger.Warn(entryRecordErrorMessageConstant, zap.String(logFieldEntryNameConstant, entryResult.Name), zap.Error(recordError))
		}
	}

	return entryResult
}

func (executor *Executor) buildSpec(manifest Manifest, entry Entry) (execshell.CommandSpec, error) {
	arguments := entry.Command
	if len(arguments) == 0 {
		arguments = executor.dependencies.Platform.ShellArguments(entry.Script)
	}

	timeout := executor.dependencies.DefaultTimeout
	if manifest.Timeout > 0 {
		timeout = manifest.Timeout
	}
	if entry.Timeout > 0 {
		timeout = entry.Timeout
	}

	directory := manifest.Directory
	if len(entry.Directory) > 0 {
		directory = entry.Directory
	}

	return execshell.NewCommandSpec(
		arguments,
		execshell.WithWorkingDirectory(pathutils.ExpandHome(directory)),
		execshell.WithEnvironment(manifest.Environment),
		execshell.WithEnvironment(entry.Environment),
		execshell.WithTimeout(timeout),
	)
}
