package main

import (
	"github.com/slim-elephant/ultimate-rvc-mac/internal/cli"
)

var (
	version = "0.1.0"
)

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
