// Patternd is the pattern-learning responder daemon for simulator golf
// facilities: it learns question/answer patterns from SMS history and
// decides, per inbound message, whether to auto-reply, suggest a reply,
// or escalate to a human operator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "patternd",
	Short: "Pattern-learning SMS responder daemon",
	Long: `patternd learns question/answer patterns from SMS conversation history
and runs a live decision pipeline: auto-send trusted replies, suggest
replies for operator review, or escalate to a human.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("patternd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/patternd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
