package main

import (
	"github.com/shizukutanaka/mate/cmd/mate/commands"
)

// Minimal entrypoint that delegates to the Cobra CLI defined in cmd/mate/commands.
func main() {
	commands.Execute()
}
