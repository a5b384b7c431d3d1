// Package main is the entry point for the qdone CLI tool.
package main

import (
	"github.com/suredone/qdone/internal/cli"
)

func main() {
	cli.Execute()
}
