package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/history"
	"github.com/temirov/execrun/internal/platform"
	"github.com/temirov/execrun/internal/ui"
	"github.com/temirov/execrun/internal/utils"
	pathutils "github.com/temirov/execrun/internal/utils/path"
)

const (
	commandUseConstant                     = "run [flags] -- <executable> [arguments...]"
	commandShortDescriptionConstant        = "Run a command and capture its output"
	commandLongDescriptionConstant         = "run launches a command, captures every line it writes to standard output and standard error, prints the lines, and exits with the command's exit code."
	timeoutFlagNameConstant                = "timeout"
	timeoutFlagDescriptionConstant         = "Wall-clock limit for the command (defaults to execution.timeout)"
	directoryFlagNameConstant              = "dir"
	directoryFlagDescriptionConstant       = "Working directory for the command"
	environmentFlagNameConstant            = "env"
	environmentFlagDescriptionConstant     = "Environment variable overlay in KEY=VALUE form (repeatable)"
	environmentFileFlagNameConstant        = "env-file"
	environmentFileFlagDescriptionConstant = "Dotenv file merged into the environment overlay (repeatable)"
	scriptFlagNameConstant                 = "script"
	scriptFlagDescriptionConstant          = "Join the arguments into a script run by the platform shell"
	recordFlagNameConstant                 = "record"
	recordFlagDescriptionConstant          = "Record the run in the history database (defaults to history.enabled)"
	prefixFlagNameConstant                 = "prefix-streams"
	prefixFlagDescriptionConstant          = "Prefix printed lines with their stream name"
	scriptArgumentSeparatorConstant        = " "
	environmentAssignmentSeparatorConstant = "="
	missingCommandMessageConstant          = "run requires an executable; pass it after --"
	invalidEnvironmentTemplateConstant     = "invalid --env value %q; expected KEY=VALUE"
	environmentFileErrorTemplateConstant   = "unable to read environment file: %w"
	printOutputErrorTemplateConstant       = "unable to print command output: %w"
	recordFailedMessageConstant            = "unable to record run"
	logFieldRunIdentifierConstant          = "run_id"
)

// Configuration captures the settings the run command consumes.
type Configuration struct {
	Execution execshell.Configuration
	History   history.Configuration
}

// CommandBuilder assembles the run command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() Configuration
	PlatformProvider             func() platform.Platform
}

// Build constructs the run command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().Duration(timeoutFlagNameConstant, 0, timeoutFlagDescriptionConstant)
	command.Flags().String(directoryFlagNameConstant, "", directoryFlagDescriptionConstant)
	command.Flags().StringArray(environmentFlagNameConstant, nil, environmentFlagDescriptionConstant)
	command.Flags().StringArray(environmentFileFlagNameConstant, nil, environmentFileFlagDescriptionConstant)
	command.Flags().Bool(scriptFlagNameConstant, false, scriptFlagDescriptionConstant)
	command.Flags().Bool(recordFlagNameConstant, false, recordFlagDescriptionConstant)
	command.Flags().Bool(prefixFlagNameConstant, false, prefixFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) == 0 {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return errors.New(missingCommandMessageConstant)
	}

	configuration := builder.resolveConfiguration()
	logger := ResolveLogger(builder.LoggerProvider)

	spec, specError := builder.buildSpec(command, arguments, configuration.Execution)
	if specError != nil {
		return specError
	}

	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}
	shellExecutor, executorError := BuildShellExecutor(logger, configuration.Execution, humanReadableLogging)
	if executorError != nil {
		return executorError
	}

	recordRun := configuration.History.Enabled
	if command.Flags().Changed(recordFlagNameConstant) {
		recordRun, _ = command.Flags().GetBool(recordFlagNameConstant)
	}
	var historyStore *history.Store
	if recordRun {
		store, closeStore, storeError := OpenHistoryStore(configuration.History, logger)
		if storeError != nil {
			return storeError
		}
		defer func() { _ = closeStore() }()
		historyStore = store
	}

	result, executionError := shellExecutor.Execute(command.Context(), spec)

	if historyStore != nil && len(result.RunID) > 0 {
		if recordError := historyStore.Record(context.WithoutCancel(command.Context()), spec, result); recordError != nil {
			logger.Warn(recordFailedMessageConstant, zap.String(logFieldRunIdentifierConstant, result.RunID), zap.Error(recordError))
		}
	}

	if executionError != nil {
		return errors.Join(executionError, ExitStatusError{Code: ExitCodeForResult(result), Status: result.Status})
	}

	prefixStreams, _ := command.Flags().GetBool(prefixFlagNameConstant)
	printer := ui.NewLinePrinter(utils.NewFlushingWriter(command.OutOrStdout()), utils.NewFlushingWriter(command.ErrOrStderr()), prefixStreams)
	if printError := printer.Print(result); printError != nil {
		return fmt.Errorf(printOutputErrorTemplateConstant, printError)
	}

	if !result.Succeeded() {
		return ExitStatusError{Code: ExitCodeForResult(result), Status: result.Status}
	}
	return nil
}

func (builder *CommandBuilder) buildSpec(command *cobra.Command, arguments []string, configuration execshell.Configuration) (execshell.CommandSpec, error) {
	commandArguments := arguments
	if useScript, _ := command.Flags().GetBool(scriptFlagNameConstant); useScript {
		commandArguments = builder.resolvePlatform().ShellArguments(strings.Join(arguments, scriptArgumentSeparatorConstant))
	}

	timeout := configuration.Sanitize().Timeout
	if command.Flags().Changed(timeoutFlagNameConstant) {
		timeout, _ = command.Flags().GetDuration(timeoutFlagNameConstant)
	}

	environmentFiles, _ := command.Flags().GetStringArray(environmentFileFlagNameConstant)
	environmentAssignments, _ := command.Flags().GetStringArray(environmentFlagNameConstant)
	environmentOverlay, environmentError := BuildEnvironmentOverlay(environmentFiles, environmentAssignments)
	if environmentError != nil {
		return execshell.CommandSpec{}, environmentError
	}

	workingDirectory, _ := command.Flags().GetString(directoryFlagNameConstant)

	return execshell.NewCommandSpec(
		commandArguments,
		execshell.WithWorkingDirectory(pathutils.ExpandHome(workingDirectory)),
		execshell.WithEnvironment(environmentOverlay),
		execshell.WithTimeout(timeout),
	)
}

// BuildEnvironmentOverlay merges dotenv files in order and then KEY=VALUE
// assignments, later sources overriding earlier ones.
func BuildEnvironmentOverlay(environmentFiles []string, assignments []string) (map[string]string, error) {
	overlay := make(map[string]string)

	if len(environmentFiles) > 0 {
		fileValues, readError := godotenv.Read(environmentFiles...)
		if readError != nil {
			return nil, fmt.Errorf(environmentFileErrorTemplateConstant, readError)
		}
		for environmentKey, environmentValue := range fileValues {
			overlay[environmentKey] = environmentValue
		}
	}

	for _, assignment := range assignments {
		environmentKey, environmentValue, found := strings.Cut(assignment, environmentAssignmentSeparatorConstant)
		environmentKey = strings.TrimSpace(environmentKey)
		if !found || len(environmentKey) == 0 {
			return nil, fmt.Errorf(invalidEnvironmentTemplateConstant, assignment)
		}
		overlay[environmentKey] = environmentValue
	}

	return overlay, nil
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
