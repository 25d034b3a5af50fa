package execshell

// CommandEventObserver receives lifecycle notifications for command execution.
type CommandEventObserver interface {
	// CommandStarted notifies observers that command execution is beginning.
	CommandStarted(spec CommandSpec)
	// CommandCompleted notifies observers that the process was launched and supplies the result.
	CommandCompleted(spec CommandSpec, result ExecutionResult)
	// CommandExecutionFailed reports a command that could not be launched.
	CommandExecutionFailed(spec CommandSpec, failure error)
}

// noopCommandEventObserver discards all command events.
type noopCommandEventObserver struct{}

// CommandStarted implements CommandEventObserver for the no-op observer.
func (noopCommandEventObserver) CommandStarted(CommandSpec) {}

// CommandCompleted implements CommandEventObserver for the no-op observer.
func (noopCommandEventObserver) CommandCompleted(CommandSpec, ExecutionResult) {}

// CommandExecutionFailed implements CommandEventObserver for the no-op observer.
func (noopCommandEventObserver) CommandExecutionFailed(CommandSpec, error) {}

// observerGroup fans events out to several observers.
type observerGroup []CommandEventObserver

func newObserverGroup(observers []CommandEventObserver) CommandEventObserver {
	filtered := make(observerGroup, 0, len(observers))
	for _, observer := range observers {
		if observer != nil {
			filtered = append(filtered, observer)
		}
	}
	if len(filtered) == 0 {
		return noopCommandEventObserver{}
	}
	return filtered
}

func (group observerGroup) CommandStarted(spec CommandSpec) {
	for _, observer := range group {
		observer.CommandStarted(spec)
	}
}

func (group observerGroup) CommandCompleted(spec CommandSpec, result ExecutionResult) {
	for _, observer := range group {
		observer.CommandCompleted(spec, result)
	}
}

func (group observerGroup) CommandExecutionFailed(spec CommandSpec, failure error) {
	for _, observer := range group {
		observer.CommandExecutionFailed(spec, failure)
	}
}
