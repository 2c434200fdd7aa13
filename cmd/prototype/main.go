// Command prototype validates, compiles and runs directive-driven execution
// pipelines over the demo classes.
package main

import (
	"fmt"
	"os"

	"github.com/flyxxxxx/prototype-sub001/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
