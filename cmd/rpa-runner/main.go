package main

import "github.com/devicelab-dev/rpa-runner/pkg/cli"

func main() {
	cli.Execute()
}
