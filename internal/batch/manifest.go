package batch

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	manifestLoadErrorTemplateConstant          = "failed to load batch manifest: %w"
	manifestParseErrorTemplateConstant         = "failed to parse batch manifest: %w"
	manifestPathRequiredMessageConstant        = "batch manifest path must be provided"
	manifestEmptyCommandsMessageConstant       = "batch manifest must define at least one command"
	manifestEntryInvocationTemplateConstant    = "batch command %s must define exactly one of command or script"
	manifestEntryDuplicateNameTemplateConstant = "batch manifest defines duplicate command name %s"
	manifestNegativeConcurrencyMessageConstant = "batch concurrency must not be negative"
	manifestNegativeTimeoutTemplateConstant    = "batch command %s has a negative timeout"
	manifestEntryLabelTemplateConstant         = "#%d"
)

// ErrManifestPathMissing indicates LoadManifest was called without a path.
var ErrManifestPathMissing = errors.New(manifestPathRequiredMessageConstant)

// ErrManifestEmpty indicates a manifest without commands.
var ErrManifestEmpty = errors.New(manifestEmptyCommandsMessageConstant)

// Manifest describes a named set of commands executed together.
type Manifest struct {
	Name        string            `yaml:"name"`
	Timeout     time.Duration     `yaml:"timeout"`
	Concurrency int               `yaml:"concurrency"`
	Directory   string            `yaml:"directory"`
	Environment map[string]string `yaml:"environment"`
	Commands    []Entry           `yaml:"commands"`
}

// Entry describes one command. Exactly one of Command or Script is set.
type Entry struct {
	Name        string            `yaml:"name"`
	Command     []string          `yaml:"command"`
	Script      string            `yaml:"script"`
	Directory   string            `yaml:"directory"`
	Environment map[string]string `yaml:"environment"`
	Timeout     time.Duration     `yaml:"timeout"`
}

// Label names the entry for messages, falling back to its position.
func (entry Entry) Label(index int) string {
	trimmedName := strings.TrimSpace(entry.Name)
	if len(trimmedName) > 0 {
		return trimmedName
	}
	return fmt.Sprintf(manifestEntryLabelTemplateConstant, index+1)
}

// LoadManifest reads and validates a manifest from disk.
func LoadManifest(filePath string) (Manifest, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Manifest{}, ErrManifestPathMissing
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Manifest{}, fmt.Errorf(manifestLoadErrorTemplateConstant, readError)
	}

	return ParseManifest(contentBytes)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(contentBytes []byte) (Manifest, error) {
	var manifest Manifest
	if unmarshalError := yaml.Unmarshal(contentBytes, &manifest); unmarshalError != nil {
		return Manifest{}, fmt.Errorf(manifestParseErrorTemplateConstant, unmarshalError)
	}

	if validationError := manifest.validate(); validationError != nil {
		return Manifest{}, validationError
	}

	return manifest, nil
}

func (manifest Manifest) validate() error {
	if len(manifest.Commands) == 0 {
		return ErrManifestEmpty
	}
	if manifest.Concurrency < 0 {
		return errors.New(manifestNegativeConcurrencyMessageConstant)
	}

	seenNames := make(map[string]struct{}, len(manifest.Commands))
	for entryIndex, entry := range manifest.Commands {
		entryLabel := entry.Label(entryIndex)
		hasCommand := len(entry.Command) > 0
		hasScript := len(strings.TrimSpace(entry.Script)) > 0
		if hasCommand == hasScript {
			return fmt.Errorf(manifestEntryInvocationTemplateConstant, entryLabel)
		}
		if entry.Timeout < 0 {
			return fmt.Errorf(manifestNegativeTimeoutTemplateConstant, entryLabel)
		}
		if _, duplicate := seenNames[entryLabel]; duplicate {
			return fmt.Errorf(manifestEntryDuplicateNameTemplateConstant, entryLabel)
		}
		seenNames[entryLabel] = struct{}{}
	}

	return nil
}
