package main

import "ragflow/cmd"

func main() {
	cmd.Execute()
}
