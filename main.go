package main

import "github.com/latchwood/mcaccel/cmd"

func main() {
	cmd.Execute()
}
