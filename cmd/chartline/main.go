package main

import (
	"github.com/chartline-org/chartline/cmd/chartline/command"
)

func main() {
	command.Execute()
}
