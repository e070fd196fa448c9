package mcpserver

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JonMunkholm/CrmAssist/internal/query"
	"github.com/JonMunkholm/CrmAssist/internal/schema"
)

type QuestionInput struct {
	Question string `json:"question" jsonschema:"question about the CRM data, in Danish or English"`
}

type AskOutput struct {
	SQL         string      `json:"sql,omitempty"`
	Columns     []string    `json:"columns,omitempty"`
	Rows        []query.Row `json:"rows,omitempty"`
	RowCount    int         `json:"row_count"`
	Explanation string      `json:"explanation,omitempty"`
	Error       string      `json:"error,omitempty"`
}

type TranslateOutput struct {
	SQL      string `json:"sql"`
	Degraded bool   `json:"degraded"`
}

type GetSchemaInput struct{}

type SchemaOutput struct {
	PromptTables []string       `json:"prompt_tables"`
	Tables       []schema.Table `json:"tables,omitempty"`
	Missing      []string       `json:"missing,omitempty"`
	Text         string         `json:"text,omitempty"`
}

type GetStatusInput struct{}

type StatusOutput struct {
	AIAvailable   bool   `json:"ai_available"`
	DBAvailable   bool   `json:"db_available"`
	CustomerCount int64  `json:"customer_count"`
	Status        string `json:"status"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "ask_crm",
		Description: "Answer a question by generating SQL, running it against the CRM store and returning the rows or an explanation",
	}, s.handleAsk)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "translate_question",
		Description: "Translate a question into a SQL statement without running it",
	}, s.handleTranslate)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_schema",
		Description: "Return the CRM tables known to the prompt and the live store",
	}, s.handleGetSchema)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_status",
		Description: "Report AI and database availability",
	}, s.handleGetStatus)
}

func (s *Server) handleAsk(ctx context.Context, req *sdk.CallToolRequest, input QuestionInput) (*sdk.CallToolResult, AskOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, AskOutput{}, fmt.Errorf("question is required")
	}
	answer := s.assistant.Ask(ctx, question)
	return nil, AskOutput{
		SQL:         answer.SQL,
		Columns:     answer.Columns,
		Rows:        answer.Rows,
		RowCount:    len(answer.Rows),
		Explanation: answer.Explanation,
		Error:       answer.Error,
	}, nil
}

func (s *Server) handleTranslate(ctx context.Context, req *sdk.CallToolRequest, input QuestionInput) (*sdk.CallToolResult, TranslateOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, TranslateOutput{}, fmt.Errorf("question is required")
	}
	sql, err := s.assistant.Translate(ctx, question)
	if err != nil {
		return nil, TranslateOutput{}, err
	}
	return nil, TranslateOutput{SQL: sql, Degraded: !s.assistant.Available()}, nil
}

func (s *Server) handleGetSchema(ctx context.Context, req *sdk.CallToolRequest, input GetSchemaInput) (*sdk.CallToolResult, SchemaOutput, error) {
	out := SchemaOutput{PromptTables: s.builder.Tables()}
	if s.schema != nil && s.schema.TableCount() > 0 {
		out.Tables = s.schema.Tables()
		out.Missing = s.schema.Missing(out.PromptTables)
		out.Text = s.schema.ToText()
	}
	return nil, out, nil
}

func (s *Server) handleGetStatus(ctx context.Context, req *sdk.CallToolRequest, input GetStatusInput) (*sdk.CallToolResult, StatusOutput, error) {
	out := StatusOutput{AIAvailable: s.assistant.Available(), Status: "partial"}
	if s.store != nil {
		if n, err := s.store.CustomerCount(ctx); err == nil {
			out.DBAvailable = true
			out.CustomerCount = n
		}
	}
	if out.AIAvailable && out.DBAvailable {
		out.Status = "healthy"
	}
	return nil, out, nil
}
