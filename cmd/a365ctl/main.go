package main

import (
	"fmt"
	"os"

	"github.com/agent365/a365ctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
