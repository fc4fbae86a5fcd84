package main

import "wavemood/cmd"

func main() {
	cmd.Execute()
}
