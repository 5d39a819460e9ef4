package main

import "github.com/tupyy/camsetup/cmd"

func main() {
	cmd.Execute()
}
