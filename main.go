// judger runs a single program under a resource-limited, syscall-filtered
// sandbox and reports its outcome as a verdict.
package main

import (
	"fmt"
	"os"

	"judger-go/cmd"
	"judger-go/guest"
)

func main() {
	if guest.IsReexec(os.Args) {
		guest.RunInit()
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
