package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	batchcmd "github.com/temirov/execrun/cmd/cli/batch"
	"github.com/temirov/execrun/cmd/cli/execution"
	historycmd "github.com/temirov/execrun/cmd/cli/history"
	"github.com/temirov/execrun/internal/history"
	"github.com/temirov/execrun/internal/platform"
	"github.com/temirov/execrun/internal/utils"
)

const (
	applicationNameConstant                 = "execrun"
	applicationShortDescriptionConstant     = "Run commands and capture their output"
	applicationLongDescriptionConstant      = "execrun launches external commands with a deadline, captures every line they write to standard output and standard error, and records the outcome."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	platformFlagNameConstant                = "platform"
	platformFlagUsageConstant               = "Override the shell platform used for scripts (linux, darwin, sunos, windows)."
	environmentPrefixConstant               = "EXECRUN"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationDirectoryNameConstant      = ".execrun"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationPlatformFieldConstant      = "platform"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	platformResolutionErrorTemplateConstant = "unable to resolve platform: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	configurationOverridesFieldConstant     = "environment_overrides"
)

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	configurationError     error
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	platformFlagValue      string
	resolvedPlatform       platform.Platform
	commandContextAccessor utils.CommandContextAccessor
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader, configurationError := newConfigurationLoader()

	application := &Application{
		configurationLoader:    configurationLoader,
		configurationError:     configurationError,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		resolvedPlatform:       platform.Detect(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.platformFlagValue, platformFlagNameConstant, "", platformFlagUsageConstant)

	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	runBuilder := execution.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() execution.Configuration {
			return execution.Configuration{
				Execution: application.configuration.Execution,
				History:   application.configuration.History,
			}
		},
		PlatformProvider: application.platform,
	}
	runCommand, runBuildError := runBuilder.Build()
	if runBuildError == nil {
		cobraCommand.AddCommand(runCommand)
	}

	batchBuilder := batchcmd.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() batchcmd.Configuration {
			return batchcmd.Configuration{
				Execution: application.configuration.Execution,
				History:   application.configuration.History,
				Batch:     application.configuration.Batch,
			}
		},
		PlatformProvider: application.platform,
	}
	batchCommand, batchBuildError := batchBuilder.Build()
	if batchBuildError == nil {
		cobraCommand.AddCommand(batchCommand)
	}

	historyBuilder := historycmd.CommandBuilder{
		LoggerProvider: loggerProvider,
		ConfigurationProvider: func() history.Configuration {
			return application.configuration.History
		},
	}
	historyCommand, historyBuildError := historyBuilder.Build()
	if historyBuildError == nil {
		cobraCommand.AddCommand(historyCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
// SIGINT and SIGTERM cancel the command context.
func (application *Application) Execute() error {
	signalContext, stopSignals := signal.NotifyContext(application.rootCommand.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	executionError := application.rootCommand.ExecuteContext(signalContext)
	if syncError := application.flushLogger(); syncError != nil {
		return errors.Join(executionError, fmt.Errorf(loggerSyncErrorTemplateConstant, syncError))
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	if application.configurationError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, application.configurationError)
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration
	application.configuration = application.configuration.Sanitize()

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	if application.persistentFlagChanged(command, platformFlagNameConstant) {
		application.configuration.Common.Platform = application.platformFlagValue
	}

	resolvedPlatform, platformError := resolvePlatform(application.configuration.Common.Platform)
	if platformError != nil {
		return fmt.Errorf(platformResolutionErrorTemplateConstant, platformError)
	}
	application.resolvedPlatform = resolvedPlatform

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.Stringer(configurationPlatformFieldConstant, application.resolvedPlatform),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.Strings(configurationOverridesFieldConstant, application.configurationMetadata.EnvironmentOverrides),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		command.SetContext(updatedContext)
	}

	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) platform() platform.Platform {
	return application.resolvedPlatform
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}
	return application.logger.Sync()
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

// resolvePlatform parses a configured platform label. A blank label selects the host platform.
func resolvePlatform(label string) (platform.Platform, error) {
	if len(strings.TrimSpace(label)) == 0 {
		return platform.Detect(), nil
	}
	return platform.Parse(label)
}
