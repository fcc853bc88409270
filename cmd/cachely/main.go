package main

import (
	"github.com/pixelvide/cachely/pkg/root"

	_ "github.com/pixelvide/cachely/pkg/console" // Register commands
)

func main() {
	root.Execute()
}
