// Package cli constructs the execrun command-line interface, wiring the Cobra
// command hierarchy, the Viper configuration loader, and structured logging.
// The run, batch, and history subcommands share one configuration tree whose
// sections are common, execution, history, and batch.
package cli
