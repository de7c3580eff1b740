package main

import "thumbq/cmd"

func main() {
	cmd.Run()
}
