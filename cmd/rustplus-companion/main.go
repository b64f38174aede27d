package main

import "github.com/moss-dev/rustplus-companion/cmd/rustplus-companion/cmd"

var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
