package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var translateCmd = &cobra.Command{
	Use:   "translate <question>",
	Short: "Print the SQL generated for a question without running it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), logWriter())
		if err != nil {
			return err
		}
		defer a.Close()

		sql, err := a.assistant.Translate(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sql)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)
}
