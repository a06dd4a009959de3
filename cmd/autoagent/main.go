package main

import "github.com/reflexcoder/autoagent/internal/cli"

func main() {
	cli.Run()
}
