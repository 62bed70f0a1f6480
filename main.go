package main

import "github.com/agentic-research/configtree/cmd"

func main() {
	cmd.Execute()
}
