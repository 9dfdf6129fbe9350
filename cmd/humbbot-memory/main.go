package main

import (
	"os"

	"github.com/humbrol2/humbbot-memory/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
