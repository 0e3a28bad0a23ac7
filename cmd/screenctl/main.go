// Command screenctl runs one-off screening checks against the simulated
// providers and prints the resulting report.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
