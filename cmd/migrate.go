package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/CrmAssist/internal/config"
	"github.com/JonMunkholm/CrmAssist/internal/crmdb"
	"github.com/JonMunkholm/CrmAssist/internal/crmdb/migrations"
	"github.com/JonMunkholm/CrmAssist/internal/logging"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the CRM schema and seed data",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, _, err := crmdb.Open(cmd.Context(), cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := migrations.NewRunner().Up(cmd.Context(), db, migrateSteps)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations (default: one)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, _, err := crmdb.Open(cmd.Context(), cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		steps := migrateSteps
		if steps == 0 {
			steps = 1
		}
		rolled, err := migrations.NewRunner().Down(cmd.Context(), db, steps)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", rolled)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, _, err := crmdb.Open(cmd.Context(), cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		statuses, err := migrations.NewRunner().Status(cmd.Context(), db)
		if err != nil {
			return err
		}
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Database: ") + pterm.NewStyle(pterm.FgLightBlue).Sprint(maskedDSN(cfg.DB)))
		data := pterm.TableData{{"Version", "Name", "Applied"}}
		for _, s := range statuses {
			applied := "no"
			if s.Applied {
				applied = "yes"
			}
			data = append(data, []string{fmt.Sprint(s.Version), s.Name, applied})
		}
		return pterm.DefaultTable.WithHasHeader(true).WithData(data).Render()
	},
}

func init() {
	migrateCmd.PersistentFlags().IntVar(&migrateSteps, "steps", 0, "Number of migrations to apply or roll back (0 = all pending for up)")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func maskedDSN(cfg config.DBConfig) string {
	return cfg.Driver + " " + logging.Mask(cfg.DSN)
}
