// Package main is the entry point for the tagfsd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/tagfsd/tagfsd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
