package cmd

import (
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/CrmAssist/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// stdout carries the protocol; logs go to stderr.
		a, err := newApp(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		a.loadSchema(ctx)
		a.logger.Info("starting mcp server", slog.Bool("ai_available", a.assistant.Available()))

		server := mcpserver.NewServer(a.assistant, a.builder, a.schema, a.dashboard, Version)
		return server.Run(ctx, &sdk.StdioTransport{})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
