package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/CrmAssist/internal/credential"
	"github.com/JonMunkholm/CrmAssist/internal/observability"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the LLM API key in the OS keyring",
	Long: `The auth commands store the LLM API key in the OS keyring so it does not
have to live in .env. An LLM_API_KEY or OPENAI_API_KEY in the environment
always takes precedence over the keyring.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key [key]",
	Short: "Save the API key (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			fmt.Fprint(cmd.ErrOrStderr(), "Enter API key: ")
			var err error
			key, err = readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
		}

		ring, err := credential.OpenKeyring()
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "❌ Secure storage is not available on this system")
			return err
		}
		if err := credential.Store(ring, key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ API key saved to the OS keyring")
		return nil
	},
}

var authClearKeyCmd = &cobra.Command{
	Use:   "clear-key",
	Short: "Remove the API key from the OS keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		ring, err := credential.OpenKeyring()
		if err != nil {
			return err
		}
		if err := credential.Clear(ring); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ API key removed from the OS keyring")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key would be read from",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cred := resolveCredential(cfg, observability.NewLogger(cfg, logWriter()))
		fmt.Fprintln(cmd.OutOrStdout(), describeCredential(cred))
		return nil
	},
}

func init() {
	authCmd.AddCommand(authSetKeyCmd, authClearKeyCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func describeCredential(cred credential.Credential) string {
	switch cred.State {
	case credential.Present:
		return fmt.Sprintf("✅ API key found (source: %s)", cred.Source)
	case credential.Placeholder:
		return "⚠️  API key is still the placeholder value; AI features are disabled"
	default:
		return "⚠️  No API key configured; AI features are disabled"
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("API key is required")
	}
	return line, nil
}
