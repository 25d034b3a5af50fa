package batch

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/execrun/cmd/cli/execution"
	"github.com/temirov/execrun/internal/batch"
	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/history"
	"github.com/temirov/execrun/internal/platform"
	"github.com/temirov/execrun/internal/ui"
	"github.com/temirov/execrun/internal/utils"
)

const (
	commandUseConstant                  = "batch <manifest.yaml>"
	commandShortDescriptionConstant     = "Run every command listed in a manifest"
	commandLongDescriptionConstant      = "batch loads a YAML manifest, runs its commands concurrently, prints each command's output in manifest order, and fails when any command fails."
	concurrencyFlagNameConstant         = "concurrency"
	concurrencyFlagDescriptionConstant  = "Maximum commands running at once (defaults to the manifest, then batch.concurrency)"
	recordFlagNameConstant              = "record"
	recordFlagDescriptionConstant       = "Record every run in the history database (defaults to history.enabled)"
	manifestPathRequiredMessageConstant = "batch manifest path required"
	loadManifestErrorTemplateConstant   = "unable to load batch manifest: %w"
	batchExecutorErrorTemplateConstant  = "unable to construct batch executor: %w"
	entryHeaderTemplateConstant         = "==> %s [%s]\n"
	entryFailureTemplateConstant        = "==> %s: %v\n"
	printOutputErrorTemplateConstant    = "unable to print batch output: %w"
	batchFailureExitCodeConstant        = 1
)

// Configuration captures the settings the batch command consumes.
type Configuration struct {
	Execution execshell.Configuration
	History   history.Configuration
	Batch     batch.Configuration
}

// CommandBuilder assembles the batch command.
type CommandBuilder struct {
	LoggerProvider               execution.LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() Configuration
	PlatformProvider             func() platform.Platform
}

// Build constructs the batch command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}

	command.Flags().Int(concurrencyFlagNameConstant, 0, concurrencyFlagDescriptionConstant)
	command.Flags().Bool(recordFlagNameConstant, false, recordFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	manifestPath := ""
	if len(arguments) > 0 {
		manifestPath = strings.TrimSpace(arguments[0])
	}
	if len(manifestPath) == 0 {
		if helpError := command.Help(); helpError != nil {
			return helpError
		}
		return errors.New(manifestPathRequiredMessageConstant)
	}

	manifest, manifestError := batch.LoadManifest(manifestPath)
	if manifestError != nil {
		return fmt.Errorf(loadManifestErrorTemplateConstant, manifestError)
	}
	if command.Flags().Changed(concurrencyFlagNameConstant) {
		manifest.Concurrency, _ = command.Flags().GetInt(concurrencyFlagNameConstant)
	}

	configuration := builder.resolveConfiguration()
	logger := execution.ResolveLogger(builder.LoggerProvider)

	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}
	shellExecutor, executorError := execution.BuildShellExecutor(logger, configuration.Execution, humanReadableLogging)
	if executorError != nil {
		return executorError
	}

	dependencies := batch.Dependencies{
		Logger:             logger,
		CommandExecutor:    shellExecutor,
		Platform:           builder.resolvePlatform(),
		DefaultTimeout:     configuration.Execution.Sanitize().Timeout,
		DefaultConcurrency: configuration.Batch.Sanitize().Concurrency,
	}

	recordRuns := configuration.History.Enabled
	if command.Flags().Changed(recordFlagNameConstant) {
		recordRuns, _ = command.Flags().GetBool(recordFlagNameConstant)
	}
	if recordRuns {
		store, closeStore, storeError := execution.OpenHistoryStore(configuration.History, logger)
		if storeError != nil {
			return storeError
		}
		defer func() { _ = closeStore() }()
		dependencies.Recorder = store
	}

	executor, batchError := batch.NewExecutor(dependencies)
	if batchError != nil {
		return fmt.Errorf(batchExecutorErrorTemplateConstant, batchError)
	}

	entryResults, executionError := executor.Execute(command.Context(), manifest)

	if printError := printEntryResults(command.OutOrStdout(), command.ErrOrStderr(), entryResults); printError != nil {
		return fmt.Errorf(printOutputErrorTemplateConstant, printError)
	}

	var failedError batch.FailedError
	if errors.As(executionError, &failedError) {
		return errors.Join(failedError, execution.ExitStatusError{Code: batchFailureExitCodeConstant, Status: execshell.StatusCompleted})
	}
	return executionError
}

func printEntryResults(standardOutput io.Writer, standardError io.Writer, entryResults []batch.EntryResult) error {
	flushingOutput := utils.NewFlushingWriter(standardOutput)
	flushingError := utils.NewFlushingWriter(standardError)
	printer := ui.NewLinePrinter(flushingOutput, flushingError, true)

	for _, entryResult := range entryResults {
		if _, headerError := fmt.Fprintf(flushingOutput, entryHeaderTemplateConstant, entryResult.Name, entryResult.Result.Status); headerError != nil {
			return headerError
		}
		if entryResult.Err != nil {
			if _, failureError := fmt.Fprintf(flushingError, entryFailureTemplateConstant, entryResult.Name, entryResult.Err); failureError != nil {
				return failureError
			}
			continue
		}
		if printError := printer.Print(entryResult.Result); printError != nil {
			return printError
		}
	}
	return nil
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return Configuration{Execution: execshell.DefaultConfiguration()}
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolvePlatform() platform.Platform {
	if builder.PlatformProvider == nil {
		return platform.Detect()
	}
	return builder.PlatformProvider()
}
