package main

import (
	"os"

	"github.com/wardstone/gatekeeper/cmd/gatekeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
