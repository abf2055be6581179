// Command near loads, queries and benchmarks nearest-neighbor indexes.
//
// Usage:
//
//	near [--config near.yaml] [--verbose] <command> [args]
//
// Commands:
//
//	backends - list index names
//	bench    - measure latency and recall on seeded random vectors
//	load     - insert records from a JSON lines file
//	query    - search the configured index
//
// Configuration is read from the YAML file given with --config, a .env file
// in the working directory and NEAR_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/near/cmd/near/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
