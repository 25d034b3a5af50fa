package platform

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	windowsGOOSConstant         = "windows"
	linuxGOOSConstant           = "linux"
	solarisGOOSConstant         = "solaris"
	illumosGOOSConstant         = "illumos"
	darwinGOOSConstant          = "darwin"
	windowsLabelConstant        = "windows"
	linuxLabelConstant          = "linux"
	sunOSLabelConstant          = "sunos"
	darwinLabelConstant         = "darwin"
	unknownLabelConstant        = "unknown"
	windowsShellConstant        = "cmd"
	windowsShellFlagConstant    = "/c"
	posixShellConstant          = "/bin/sh"
	posixShellFlagConstant      = "-c"
	windowsVariableTemplate     = "%%%s%%"
	posixVariableTemplate       = "$%s"
	unsupportedPlatformTemplate = "unsupported platform: %s"
)

// Platform enumerates the operating system families with distinct shell conventions.
type Platform int

// Supported platforms.
const (
	Unknown Platform = iota
	Windows
	Linux
	SunOS
	Darwin
)

var platformLabels = map[Platform]string{
	Unknown: unknownLabelConstant,
	Windows: windowsLabelConstant,
	Linux:   linuxLabelConstant,
	SunOS:   sunOSLabelConstant,
	Darwin:  darwinLabelConstant,
}

// Detect returns the platform the binary is running on.
func Detect() Platform {
	return FromGOOS(runtime.GOOS)
}

// FromGOOS maps a runtime.GOOS value to a Platform.
func FromGOOS(goos string) Platform {
	switch strings.ToLower(strings.TrimSpace(goos)) {
	case windowsGOOSConstant:
		return Windows
	case linuxGOOSConstant:
		return Linux
	case solarisGOOSConstant, illumosGOOSConstant:
		return SunOS
	case darwinGOOSConstant:
		return Darwin
	default:
		return Unknown
	}
}

// Parse resolves a platform label such as "linux" or "windows".
func Parse(label string) (Platform, error) {
	normalizedLabel := strings.ToLower(strings.TrimSpace(label))
	for platform, platformLabel := range platformLabels {
		if platformLabel == normalizedLabel {
			return platform, nil
		}
	}
	return Unknown, fmt.Errorf(unsupportedPlatformTemplate, label)
}

// String returns the platform label.
func (platform Platform) String() string {
	if platformLabel, known := platformLabels[platform]; known {
		return platformLabel
	}
	return unknownLabelConstant
}

// ShellArguments wraps script in the platform's command interpreter.
func (platform Platform) ShellArguments(script string) []string {
	if platform == Windows {
		return []string{windowsShellConstant, windowsShellFlagConstant, script}
	}
	return []string{posixShellConstant, posixShellFlagConstant, script}
}

// EnvironmentReference renders a variable reference in the platform's shell syntax.
func (platform Platform) EnvironmentReference(name string) string {
	if platform == Windows {
		return fmt.Sprintf(windowsVariableTemplate, name)
	}
	return fmt.Sprintf(posixVariableTemplate, name)
}
