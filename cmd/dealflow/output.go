package main

import (
	"encoding/json"

	cli "github.com/urfave/cli/v3"
)

// printJSON writes v as indented JSON to the command's writer.
func printJSON(command *cli.Command, v any) error {
	encoder := json.NewEncoder(command.Root().Writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
