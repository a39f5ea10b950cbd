package main

import "github.com/kozaktomas/face-folio/cmd"

func main() {
	cmd.Execute()
}
