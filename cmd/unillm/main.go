package main

import (
	"os"

	"github.com/unillm/unillm/cmd/unillm/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(commands.ExitCode(err))
	}
}
