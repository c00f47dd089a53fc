package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pizzaz/pizzazd/pkg/mcp"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "pizzazd",
	Short:        "MCP server exposing pizza widgets as tools and resources",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pizzazd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pizzazd %s (MCP protocol %s)\n", mcp.ServerVersion, mcp.ProtocolVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd)
}
