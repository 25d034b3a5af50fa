// Package execshell runs external processes and captures their output.
//
// ProcessRunner launches a child with runner-owned pipes, drains standard output
// and standard error concurrently through StreamDrain workers, enforces a
// wall-clock timeout, and returns an ExecutionResult whose lines list standard
// error before standard output. ShellExecutor layers zap logging and
// CommandEventObserver notifications on top of any CommandRunner.
package execshell
