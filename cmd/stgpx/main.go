package main

import (
	"context"
	"os"

	"stgpx/cmd/stgpx/commands"
)

func main() {
	os.Exit(commands.Execute(context.Background(), os.Args[1:]))
}
