package main

import (
	"os"

	"github.com/matheuscscp/radio-sim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
