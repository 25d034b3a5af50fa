// Package history provides the history command, which lists recorded runs.
package history
