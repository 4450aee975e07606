package main

import "docdetect/cmd/docdetect/commands"

func main() {
	commands.Execute()
}
