package batch

const (
	configurationConcurrencyKeyConstant = "concurrency"
	configurationKeySeparatorConstant   = "."
	defaultConfiguredConcurrency        = 4
)

// Configuration holds batch defaults applied when a manifest omits them.
type Configuration struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DefaultConfigurationValues exposes the batch defaults keyed under prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	return map[string]any{
		prefix + configurationKeySeparatorConstant + configurationConcurrencyKeyConstant: defaultConfiguredConcurrency,
	}
}

// Sanitize replaces a non-positive concurrency with the default.
func (configuration Configuration) Sanitize() Configuration {
	if configuration.Concurrency <= 0 {
		configuration.Concurrency = defaultConfiguredConcurrency
	}
	return configuration
}
