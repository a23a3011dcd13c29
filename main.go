package main

import "toolcrib/internal/cli"

func main() {
	cli.Execute()
}
