package main

import (
	"os"

	"cofe/internal/cli"
)

func main() {
	os.Exit(cli.Run("cofectl", os.Args[1:]))
}
