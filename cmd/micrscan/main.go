// Command micrscan runs the MICR line pipeline as a CLI tool or an HTTP
// server.
package main

import (
	"fmt"
	"os"

	"micrscan/cmd/micrscan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
