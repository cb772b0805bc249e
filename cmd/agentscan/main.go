package main

import (
	"os"

	"jordanella.com/agent-scan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
