// Package main 是应用程序的入口点。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "medassist",
		Short:        "Medical Q&A assistant demo server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "config file")

	root.AddCommand(serveCMD(), askCMD(), eventsCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
