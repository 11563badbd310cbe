package main

import (
	"fmt"
	"os"

	"github.com/arthur-debert/dotdeploy/cmd/dotdeploy/commands"
	"github.com/arthur-debert/dotdeploy/pkg/ui"
)

func main() {
	rootCmd := commands.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		format := ui.DetectFormat(os.Stderr)
		if r, rerr := ui.NewRenderer(format, os.Stderr); rerr == nil {
			_ = r.RenderError(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
