// Counseld is the conversation and crisis-triage daemon for the
// counseling chat platform.
//
// Usage:
//
//	# Start the server with defaults
//	counseld serve
//
//	# Start with a config file
//	counseld serve --config /etc/counseld/config.yaml
//
//	# Classify a message locally without a server
//	counseld classify "I've been feeling hopeless"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config persistent flag.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "counseld",
	Short: "Conversation and crisis-triage engine",
	Long: `counseld runs the conversation store and crisis-triage pipeline for
the counseling chat platform: keyword-tier classification, response
selection, escalation alerts, and the HTTP API.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("counseld by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(versionCmd)
}
