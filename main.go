package main

import "github.com/blitzdl/blitz/cmd"

func main() {
	cmd.Execute()
}
