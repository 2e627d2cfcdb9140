package main

import (
	"fmt"
	"os"

	"satfetch/internal/cli"
)

var version = "dev"

func main() {
	err := cli.Execute(version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
