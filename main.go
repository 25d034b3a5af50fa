package main

import (
	"fmt"
	"os"

	"github.com/temirov/execrun/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the execrun command-line application and exits with the status of the command it ran.
func main() {
	exitCode, reportableError := cli.ResolveExit(cli.Execute())
	if reportableError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, reportableError)
	}
	os.Exit(exitCode)
}
