package main

import (
	"os"

	"legal-assistant-be/cmd/legalctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
