package main

import "github.com/devicelab-dev/bizflow-runner/pkg/cli"

func main() {
	cli.Execute()
}
