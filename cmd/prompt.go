package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	promptVariant string
	promptList    bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the translation instruction sent to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		builder, err := loadBuilder(cfg.Prompt)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if promptList {
			for _, key := range builder.VariantKeys() {
				fmt.Fprintln(out, key)
			}
			return nil
		}

		variant := cfg.Prompt.Variant
		if cmd.Flags().Changed("variant") {
			variant = promptVariant
		}
		if variant != "" && builder.Variant(variant) == "" {
			return fmt.Errorf("unknown prompt variant %q (available: %v)", variant, builder.VariantKeys())
		}
		fmt.Fprintln(out, builder.SystemFor(variant))
		return nil
	},
}

func init() {
	promptCmd.Flags().StringVar(&promptVariant, "variant", "", "Append a specialised instruction (see --list)")
	promptCmd.Flags().BoolVar(&promptList, "list", false, "List the available variants")
	rootCmd.AddCommand(promptCmd)
}
