// Package mcpserver exposes the CRM assistant to agent clients over the Model
// Context Protocol.
package mcpserver

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JonMunkholm/CrmAssist/internal/assistant"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
	"github.com/JonMunkholm/CrmAssist/internal/schema"
)

// CustomerCounter probes the store for the status tool.
type CustomerCounter interface {
	CustomerCount(ctx context.Context) (int64, error)
}

type Server struct {
	assistant *assistant.Assistant
	builder   *prompt.Builder
	schema    *schema.Cache
	store     CustomerCounter
	mcp       *sdk.Server
}

// NewServer registers the tools. cache may be nil when introspection failed.
func NewServer(a *assistant.Assistant, builder *prompt.Builder, cache *schema.Cache, store CustomerCounter, version string) *Server {
	s := &Server{
		assistant: a,
		builder:   builder,
		schema:    cache,
		store:     store,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "crmassist",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
