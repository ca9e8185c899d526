package main

import (
	"os"

	"github.com/leadbridge/leadbridge/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
