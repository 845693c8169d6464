package main

import (
	"fmt"
	"os"

	"github.com/zurustar/clamb/pkg/app"
)

func main() {
	application := app.New(os.Stdout, os.Stderr)
	if err := application.Run(os.Args[1:]); err != nil {
		if !app.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
