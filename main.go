package main

import (
	"os"

	"github.com/trafficsense/forecast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
