package main

import (
	"github.com/mfellner/kvstash/cmd"
)

func main() {
	cmd.Execute()
}
