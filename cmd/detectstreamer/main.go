package main

import "github.com/bryanchriswhite/DetectStreamer/cmd/detectstreamer/commands"

func main() {
	commands.Execute()
}
