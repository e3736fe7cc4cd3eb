package main

import "github.com/maroda/neurales/cmd"

func main() {
	cmd.Execute()
}
