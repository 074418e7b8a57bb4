package main

import "github.com/emrgen/docrender/cmd"

func main() {
	cmd.Execute()
}
