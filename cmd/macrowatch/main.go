package main

import "macrowatch/internal/cli"

func main() {
	cli.Execute()
}
