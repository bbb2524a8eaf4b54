package main

import "github.com/spf13/cobra"

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/itemassert/
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("itemassert version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
