package main

import "github.com/nonibytes/uniquery/internal/cli"

func main() {
	cli.Execute()
}
