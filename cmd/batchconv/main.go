package main

import (
	"os"

	"media-converter/cmd/batchconv/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
