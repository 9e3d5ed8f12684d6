package main

import "github.com/agentic-research/crawl/cmd"

func main() {
	cmd.Execute()
}
