package main

import (
	"github.com/chartline-org/chartline/api"
)

func main() {
	api.MainLoop()
}
