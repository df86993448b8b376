package main

import "github.com/emberdb/ember/cmd"

func main() {
	cmd.Execute()
}
