package main

import "github.com/fundbridge/fundbridge/cmd/fundbridge-cli/cmd"

func main() {
	cmd.Execute()
}
