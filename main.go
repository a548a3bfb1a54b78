package main

import "github.com/atkit/botfleet/cmd"

func main() {
	cmd.Execute()
}
