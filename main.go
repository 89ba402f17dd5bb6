package main

import (
	"os"

	"github.com/orb-community/orb-acceptance/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
