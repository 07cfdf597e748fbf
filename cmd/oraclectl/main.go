// Package main is the oraclectl command line client.
package main

import "oracle-protocol/internal/cli"

func main() {
	cli.Execute()
}
