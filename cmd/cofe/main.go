package main

import (
	"os"

	"cofe/internal/cli"
)

func main() {
	os.Exit(cli.Run("cofe", os.Args[1:]))
}
