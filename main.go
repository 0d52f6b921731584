package main

import (
	"os"

	"go-mkimg/cmd"
)

var Version = "dev"

func main() {
	os.Exit(cmd.Execute(Version))
}
