// Package execution provides the run command along with the executor and
// history wiring shared by the batch and history commands.
package execution
