package cli

import (
	_ "embed"

	"github.com/temirov/execrun/internal/batch"
	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/history"
	"github.com/temirov/execrun/internal/utils"
)

const (
	commonConfigurationKeyConstant    = "common"
	executionConfigurationKeyConstant = "execution"
	historyConfigurationKeyConstant   = "history"
	batchConfigurationKeyConstant     = "batch"
	logLevelConfigKeyConstant         = "log_level"
	logFormatConfigKeyConstant        = "log_format"
	platformConfigKeyConstant         = "platform"
	configurationKeySeparatorConstant = "."
)

//go:embed default_config.yaml
var embeddedDefaultConfiguration []byte

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration `mapstructure:"common"`
	Execution execshell.Configuration        `mapstructure:"execution"`
	History   history.Configuration          `mapstructure:"history"`
	Batch     batch.Configuration            `mapstructure:"batch"`
}

// ApplicationCommonConfiguration stores settings shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	Platform  string `mapstructure:"platform"`
}

// Sanitize replaces unusable execution and batch values with their defaults.
func (configuration ApplicationConfiguration) Sanitize() ApplicationConfiguration {
	configuration.Execution = configuration.Execution.Sanitize()
	configuration.Batch = configuration.Batch.Sanitize()
	return configuration
}

// newConfigurationLoader builds the loader for config.yaml in the working directory
// or ~/.execrun, EXECRUN_* overrides, and the embedded defaults.
func newConfigurationLoader() (*utils.ConfigurationLoader, error) {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		utils.DefaultSearchPaths(configurationDirectoryNameConstant),
	)
	configurationLoader.SetEmbeddedConfiguration(embeddedDefaultConfiguration)

	sections := []struct {
		key      string
		defaults utils.SectionDefaults
	}{
		{key: commonConfigurationKeyConstant, defaults: commonDefaultConfigurationValues},
		{key: executionConfigurationKeyConstant, defaults: execshell.DefaultConfigurationValues},
		{key: historyConfigurationKeyConstant, defaults: history.DefaultConfigurationValues},
		{key: batchConfigurationKeyConstant, defaults: batch.DefaultConfigurationValues},
	}
	for _, section := range sections {
		if registrationError := configurationLoader.RegisterSection(section.key, section.defaults); registrationError != nil {
			return nil, registrationError
		}
	}
	return configurationLoader, nil
}

func commonDefaultConfigurationValues(prefix string) map[string]any {
	return map[string]any{
		prefix + configurationKeySeparatorConstant + logLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		prefix + configurationKeySeparatorConstant + logFormatConfigKeyConstant: string(utils.LogFormatStructured),
		prefix + configurationKeySeparatorConstant + platformConfigKeyConstant:  "",
	}
}
