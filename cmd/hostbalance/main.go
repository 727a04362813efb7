package main

import "github.com/guimove/hostbalance/cmd"

func main() {
	cmd.Execute()
}
