package cli

import (
	"errors"

	"github.com/temirov/execrun/cmd/cli/execution"
)

const defaultFailureExitCodeConstant = 1

// ResolveExit maps an execution error to a process exit code and the part of the
// error worth reporting. A bare exit status yields a nil report because the
// command output already describes the outcome.
func ResolveExit(executionError error) (int, error) {
	if executionError == nil {
		return 0, nil
	}

	exitCode, carriesExitCode := execution.ExitCode(executionError)
	if !carriesExitCode {
		return defaultFailureExitCodeConstant, executionError
	}

	return exitCode, withoutExitStatus(executionError)
}

func withoutExitStatus(executionError error) error {
	joinedErrors, isJoined := executionError.(interface{ Unwrap() []error })
	if !isJoined {
		var exitStatus execution.ExitStatusError
		if errors.As(executionError, &exitStatus) {
			return nil
		}
		return executionError
	}

	var reportable []error
	for _, joinedError := range joinedErrors.Unwrap() {
		if remaining := withoutExitStatus(joinedError); remaining != nil {
			reportable = append(reportable, remaining)
		}
	}
	return errors.Join(reportable...)
}
