package main

import (
	"fmt"
	"os"

	_ "github.com/brimdata/raexec/cmd/raexec/explain"
	"github.com/brimdata/raexec/cmd/raexec/root"
	_ "github.com/brimdata/raexec/cmd/raexec/run"
	_ "github.com/brimdata/raexec/cmd/raexec/serve"
	_ "github.com/brimdata/raexec/cmd/raexec/steps"
)

func main() {
	if err := root.Raexec.ExecRoot(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
