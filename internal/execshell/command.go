package execshell

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentAssignmentTemplateConstant  = "%s%s%s"
	commandArgumentsJoinSeparatorConstant  = " "
	commandLabelTemplateConstant           = "%s%s"
	workingDirectorySuffixTemplateConstant = " (in %s)"
	emptyStringConstant                    = ""
)

// CommandSpecOption customizes a CommandSpec during construction.
type CommandSpecOption func(*CommandSpec)

// CommandSpec describes a single process invocation. It is immutable once
// constructed: accessors return copies of the underlying collections.
type CommandSpec struct {
	arguments            []string
	workingDirectory     string
	environmentVariables map[string]string
	timeout              time.Duration
}

// WithWorkingDirectory sets the directory the process starts in.
func WithWorkingDirectory(workingDirectory string) CommandSpecOption {
	return func(spec *CommandSpec) {
		spec.workingDirectory = strings.TrimSpace(workingDirectory)
	}
}

// WithEnvironment merges the supplied variables into the environment overlay.
func WithEnvironment(environmentVariables map[string]string) CommandSpecOption {
	return func(spec *CommandSpec) {
		if len(environmentVariables) == 0 {
			return
		}
		if spec.environmentVariables == nil {
			spec.environmentVariables = make(map[string]string, len(environmentVariables))
		}
		for environmentKey, environmentValue := range environmentVariables {
			spec.environmentVariables[environmentKey] = environmentValue
		}
	}
}

// WithTimeout sets the wall-clock deadline for the process.
func WithTimeout(timeout time.Duration) CommandSpecOption {
	return func(spec *CommandSpec) {
		spec.timeout = timeout
	}
}

// NewCommandSpec validates and builds a CommandSpec. The first argument is the executable.
func NewCommandSpec(arguments []string, options ...CommandSpecOption) (CommandSpec, error) {
	if len(arguments) == 0 {
		return CommandSpec{}, ErrEmptyArguments
	}
	if len(strings.TrimSpace(arguments[0])) == 0 {
		return CommandSpec{}, ErrEmptyExecutable
	}

	spec := CommandSpec{arguments: append([]string{}, arguments...)}
	for _, option := range options {
		if option != nil {
			option(&spec)
		}
	}

	if spec.timeout <= 0 {
		return CommandSpec{}, fmt.Errorf("%w: %s", ErrNonPositiveTimeout, spec.timeout)
	}

	return spec, nil
}

// Executable returns the program to launch.
func (spec CommandSpec) Executable() string {
	if len(spec.arguments) == 0 {
		return emptyStringConstant
	}
	return spec.arguments[0]
}

// Arguments returns the full argument vector, executable included.
func (spec CommandSpec) Arguments() []string {
	return append([]string{}, spec.arguments...)
}

// WorkingDirectory returns the configured working directory or an empty string.
func (spec CommandSpec) WorkingDirectory() string {
	return spec.workingDirectory
}

// EnvironmentOverlay returns a copy of the environment overlay.
func (spec CommandSpec) EnvironmentOverlay() map[string]string {
	overlay := make(map[string]string, len(spec.environmentVariables))
	for environmentKey, environmentValue := range spec.environmentVariables {
		overlay[environmentKey] = environmentValue
	}
	return overlay
}

// Timeout returns the process deadline.
func (spec CommandSpec) Timeout() time.Duration {
	return spec.timeout
}

// MergedEnvironment applies the overlay on top of the inherited environment.
// Inherited entries whose key appears in the overlay are dropped.
func (spec CommandSpec) MergedEnvironment(inheritedEnvironment []string) []string {
	mergedEnvironment := make([]string, 0, len(inheritedEnvironment)+len(spec.environmentVariables))
	for _, inheritedAssignment := range inheritedEnvironment {
		inheritedKey, _, _ := strings.Cut(inheritedAssignment, environmentAssignmentSeparatorConstant)
		if _, overridden := spec.environmentVariables[inheritedKey]; overridden {
			continue
		}
		mergedEnvironment = append(mergedEnvironment, inheritedAssignment)
	}

	overlayKeys := make([]string, 0, len(spec.environmentVariables))
	for environmentKey := range spec.environmentVariables {
		overlayKeys = append(overlayKeys, environmentKey)
	}
	sort.Strings(overlayKeys)

	for _, environmentKey := range overlayKeys {
		mergedEnvironment = append(mergedEnvironment, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentAssignmentSeparatorConstant, spec.environmentVariables[environmentKey]))
	}

	return mergedEnvironment
}

// String renders the command for diagnostics.
func (spec CommandSpec) String() string {
	commandLabel := strings.Join(spec.arguments, commandArgumentsJoinSeparatorConstant)
	if len(spec.workingDirectory) == 0 {
		return commandLabel
	}
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, fmt.Sprintf(workingDirectorySuffixTemplateConstant, spec.workingDirectory))
}
