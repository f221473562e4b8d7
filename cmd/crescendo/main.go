package main

import (
	"os"

	"github.com/crescendo-labs/crescendo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
