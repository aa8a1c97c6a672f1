package main

import (
	"os"

	"github.com/ewolf/brain/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
