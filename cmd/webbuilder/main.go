package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "webbuilder", SilenceUsage: true}

	root.AddCommand(serveCMD(), migrateCMD(), classifyCMD(), reconcileCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
