package main

import (
	"os"

	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli"
)

func main() {
	os.Exit(cli.Execute())
}
