package execshell

import "time"

const (
	defaultCommandTimeoutConstant            = 30 * time.Second
	configurationTimeoutKeyConstant          = "timeout"
	configurationDrainGracePeriodKeyConstant = "drain_grace_period"
	configurationTerminationGraceKeyConstant = "termination_grace_period"
	configurationEncodingKeyConstant         = "encoding"
	configurationLineLimitKeyConstant        = "line_limit"
	configurationKeySeparatorConstant        = "."
)

// Configuration captures the execution settings loaded from the configuration file.
type Configuration struct {
	Timeout                time.Duration `mapstructure:"timeout"`
	DrainGracePeriod       time.Duration `mapstructure:"drain_grace_period"`
	TerminationGracePeriod time.Duration `mapstructure:"termination_grace_period"`
	Encoding               string        `mapstructure:"encoding"`
	LineLimit              int           `mapstructure:"line_limit"`
}

// DefaultConfiguration returns the built-in execution settings.
func DefaultConfiguration() Configuration {
	return Configuration{
		Timeout:                defaultCommandTimeoutConstant,
		DrainGracePeriod:       defaultDrainGracePeriodConstant,
		TerminationGracePeriod: defaultTerminationGracePeriodConstant,
		Encoding:               defaultOutputEncodingConstant,
	}
}

// DefaultConfigurationValues exposes the defaults keyed for a configuration loader under prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		configurationKey(prefix, configurationTimeoutKeyConstant):          defaults.Timeout.String(),
		configurationKey(prefix, configurationDrainGracePeriodKeyConstant): defaults.DrainGracePeriod.String(),
		configurationKey(prefix, configurationTerminationGraceKeyConstant): defaults.TerminationGracePeriod.String(),
		configurationKey(prefix, configurationEncodingKeyConstant):         defaults.Encoding,
		configurationKey(prefix, configurationLineLimitKeyConstant):        defaults.LineLimit,
	}
}

// Sanitize replaces unset values with defaults.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration
	if sanitized.Timeout <= 0 {
		sanitized.Timeout = defaults.Timeout
	}
	if sanitized.DrainGracePeriod <= 0 {
		sanitized.DrainGracePeriod = defaults.DrainGracePeriod
	}
	if sanitized.TerminationGracePeriod <= 0 {
		sanitized.TerminationGracePeriod = defaults.TerminationGracePeriod
	}
	if len(sanitized.Encoding) == 0 {
		sanitized.Encoding = defaults.Encoding
	}
	if sanitized.LineLimit < 0 {
		sanitized.LineLimit = 0
	}
	return sanitized
}

// RunnerOptions translates the configuration into ProcessRunner options.
func (configuration Configuration) RunnerOptions() []RunnerOption {
	sanitized := configuration.Sanitize()
	return []RunnerOption{
		WithDrainGracePeriod(sanitized.DrainGracePeriod),
		WithTerminationGracePeriod(sanitized.TerminationGracePeriod),
		WithOutputEncoding(sanitized.Encoding),
		WithLineLimit(sanitized.LineLimit),
	}
}

func configurationKey(prefix string, key string) string {
	if len(prefix) == 0 {
		return key
	}
	return prefix + configurationKeySeparatorConstant + key
}
