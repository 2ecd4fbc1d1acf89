package main

import "mediacat/cmd"

func main() {
	cmd.Execute()
}
