// Package cmd provides the command-line interface of the CRM assistant: the
// web server, one-shot questions, migrations, the MCP server and credential
// management.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose  bool
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:           "crmassist",
	Short:         "Ask questions about the Support Solutions CRM in plain language",
	Long:          `crmassist translates natural-language questions into SQL with an LLM, runs them against the CRM store and explains empty results.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Write structured logs to stderr")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load environment from these files (default .env)")
}
