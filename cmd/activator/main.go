package main

import (
	"os"

	"activator/cmd/activator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
