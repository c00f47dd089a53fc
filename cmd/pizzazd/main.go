// pizzazd - MCP server for the pizza widget catalog
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
