package main

import (
	"github.com/alvesdmateus/image-publisher/internal/cli/commands"
)

func main() {
	commands.Execute()
}
