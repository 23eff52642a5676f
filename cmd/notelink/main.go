package main

import (
	"os"

	"github.com/pwflint/obsidian-things-export/internal/cli"
)

func main() {
	code := cli.Run(os.Args[1:])
	os.Exit(code)
}
