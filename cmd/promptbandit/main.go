package main

import (
	"os"

	"github.com/promptbandit/promptbandit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
