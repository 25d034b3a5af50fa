// Package platform identifies the host operating system family and resolves the
// shell invocation style callers use when building a CommandSpec.
package platform
