package main

import (
	"os"

	"github.com/openattach/openattach/cmd/openattach/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
