package main

import (
	"fmt"
	"os"

	"github.com/rsned/raid-optimizer-server/internal/raid/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
