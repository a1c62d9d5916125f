package main

import "github.com/fedquery/fq/cli/cmd"

func main() {
	cmd.Execute()
}
