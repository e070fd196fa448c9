package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/CrmAssist/internal/assistant"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question against the CRM store",
	Long: `The ask command translates the question to SQL, runs it and prints the rows.
When no rows match, a short explanation is printed instead.

Example: crmassist ask "Hvilke kunder har vi i Jylland?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), logWriter())
		if err != nil {
			return err
		}
		defer a.Close()

		question := strings.Join(args, " ")

		if askJSON {
			answer := a.assistant.Ask(cmd.Context(), question)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		}

		if !a.assistant.Available() {
			pterm.Warning.Println(prompt.ErrorMessage(prompt.MsgNoAPIKey))
		}

		spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Tænker...")
		answer := a.assistant.Ask(cmd.Context(), question)
		if spinner != nil {
			_ = spinner.Stop()
		}

		renderAnswer(answer)
		if answer.Error != "" {
			return fmt.Errorf("%s", answer.Error)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func renderAnswer(answer assistant.Answer) {
	if answer.SQL != "" {
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint(prompt.SuccessMessage(prompt.MsgQueryGenerated)))
		pterm.Println(pterm.NewStyle(pterm.FgCyan).Sprint(answer.SQL))
		pterm.Println()
	}
	if answer.Error != "" {
		pterm.Error.Println(answer.Error)
		return
	}
	if answer.Explanation != "" {
		pterm.Info.Println(answer.Explanation)
		return
	}
	pterm.Success.Println(prompt.SuccessMessage(prompt.MsgDataFound))
	_ = pterm.DefaultTable.WithHasHeader(true).WithData(answerTable(answer)).Render()
}

// answerTable lays the rows out in column order with a header row.
func answerTable(answer assistant.Answer) pterm.TableData {
	data := pterm.TableData{answer.Columns}
	for _, row := range answer.Rows {
		line := make([]string, len(answer.Columns))
		for i, col := range answer.Columns {
			if v := row[col]; v != nil {
				line[i] = fmt.Sprint(v)
			}
		}
		data = append(data, line)
	}
	return data
}
