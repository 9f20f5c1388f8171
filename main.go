package main

import (
	"os"

	"github.com/adalundhe/docgraph/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
