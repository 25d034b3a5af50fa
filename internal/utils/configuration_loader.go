package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	pathutils "github.com/temirov/execrun/internal/utils/path"
)

const (
	configurationKeySeparatorConstant               = "."
	environmentKeySeparatorConstant                 = "_"
	workingDirectorySearchPathConstant              = "."
	homeDirectorySearchPathPrefixConstant           = "~"
	sliceDecodeSeparatorConstant                    = ","
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
	sectionRegistrationErrorTemplateConstant        = "%w: %q"
)

var (
	// ErrConfigurationSectionInvalid indicates a section registered without a key or defaults.
	ErrConfigurationSectionInvalid = errors.New("configuration section requires a key and defaults")
	// ErrConfigurationSectionDuplicate indicates a section key registered twice.
	ErrConfigurationSectionDuplicate = errors.New("configuration section already registered")
)

// SectionDefaults yields the default values of one configuration section keyed under prefix.
type SectionDefaults func(prefix string) map[string]any

type configurationSection struct {
	key      string
	defaults SectionDefaults
}

// ConfigurationLoader layers configuration for the CLI. Precedence from lowest to
// highest: section defaults, embedded configuration, configuration file, environment.
type ConfigurationLoader struct {
	configurationName     string
	configurationType     string
	environmentPrefix     string
	searchPaths           []string
	embeddedConfiguration []byte
	sections              []configurationSection
	homeExpander          pathutils.HomeExpander
}

// LoadedConfiguration surfaces metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed string
	// EnvironmentOverrides lists the environment variables that supplied a value, sorted.
	EnvironmentOverrides []string
}

// DefaultSearchPaths returns the working directory followed by ~/<directoryName>.
func DefaultSearchPaths(directoryName string) []string {
	return []string{
		workingDirectorySearchPathConstant,
		filepath.Join(homeDirectorySearchPathPrefixConstant, directoryName),
	}
}

// NewConfigurationLoader creates a loader for configurationName.configurationType files
// found in searchPaths, overridden by environment variables named <environmentPrefix>_<SECTION>_<KEY>.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	homeExpander := pathutils.NewHomeExpander()
	expandedSearchPaths := make([]string, 0, len(searchPaths))
	for _, searchPath := range searchPaths {
		expandedSearchPaths = append(expandedSearchPaths, homeExpander.Expand(searchPath))
	}

	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: strings.TrimSpace(configurationType),
		environmentPrefix: strings.ToUpper(strings.TrimSpace(environmentPrefix)),
		searchPaths:       expandedSearchPaths,
		homeExpander:      homeExpander,
	}
}

// SetEmbeddedConfiguration stores configuration content, in the loader's format,
// merged over section defaults and under any configuration file.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte) {
	if loader == nil {
		return
	}
	loader.embeddedConfiguration = append([]byte(nil), configurationData...)
}

// RegisterSection adds a top-level configuration section whose defaults are keyed under sectionKey.
func (loader *ConfigurationLoader) RegisterSection(sectionKey string, defaults SectionDefaults) error {
	trimmedKey := strings.TrimSpace(sectionKey)
	if len(trimmedKey) == 0 || defaults == nil {
		return fmt.Errorf(sectionRegistrationErrorTemplateConstant, ErrConfigurationSectionInvalid, sectionKey)
	}
	for _, registeredSection := range loader.sections {
		if strings.EqualFold(registeredSection.key, trimmedKey) {
			return fmt.Errorf(sectionRegistrationErrorTemplateConstant, ErrConfigurationSectionDuplicate, trimmedKey)
		}
	}
	loader.sections = append(loader.sections, configurationSection{key: trimmedKey, defaults: defaults})
	return nil
}

// EnvironmentVariableName returns the variable that overrides configurationKey,
// for example EXECRUN_EXECUTION_TIMEOUT for execution.timeout.
func (loader *ConfigurationLoader) EnvironmentVariableName(configurationKey string) string {
	variableName := strings.ToUpper(strings.ReplaceAll(configurationKey, configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	if len(loader.environmentPrefix) == 0 {
		return variableName
	}
	return loader.environmentPrefix + environmentKeySeparatorConstant + variableName
}

// LoadConfiguration decodes every registered section into targetConfiguration. A
// non-empty configurationFilePath replaces the search paths and may start with "~".
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	for _, section := range loader.sections {
		for defaultKey, defaultValue := range section.defaults(section.key) {
			viperInstance.SetDefault(defaultKey, defaultValue)
		}
	}

	if len(loader.embeddedConfiguration) > 0 {
		if mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
		}
	}

	for _, searchPath := range loader.searchPaths {
		viperInstance.AddConfigPath(searchPath)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	viperInstance.AutomaticEnv()

	if trimmedPath := strings.TrimSpace(configurationFilePath); len(trimmedPath) > 0 {
		viperInstance.SetConfigFile(loader.homeExpander.Expand(trimmedPath))
	}

	if readError := viperInstance.MergeInConfig(); readError != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
		}
	}

	if unmarshalError := viperInstance.Unmarshal(targetConfiguration, viper.DecodeHook(configurationDecodeHook())); unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	return LoadedConfiguration{
		ConfigFileUsed:       viperInstance.ConfigFileUsed(),
		EnvironmentOverrides: loader.environmentOverrides(viperInstance.AllKeys()),
	}, nil
}

func (loader *ConfigurationLoader) environmentOverrides(configurationKeys []string) []string {
	var overrides []string
	for _, configurationKey := range configurationKeys {
		variableName := loader.EnvironmentVariableName(configurationKey)
		if _, present := os.LookupEnv(variableName); present {
			overrides = append(overrides, variableName)
		}
	}
	sort.Strings(overrides)
	return overrides
}

// configurationDecodeHook converts textual durations such as "30s" and
// comma-separated lists supplied through environment variables.
func configurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(sliceDecodeSeparatorConstant),
	)
}
