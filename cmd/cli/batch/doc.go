// Package batch provides the batch command, which runs a YAML manifest of commands.
package batch
