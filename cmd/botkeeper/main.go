package main

import (
	"os"

	"github.com/simplco/botkeeper/cmd/botkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
