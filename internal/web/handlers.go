package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/CrmAssist/internal/assistant"
	"github.com/JonMunkholm/CrmAssist/internal/crmdb"
	"github.com/JonMunkholm/CrmAssist/internal/observability"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
	"github.com/JonMunkholm/CrmAssist/internal/query"
	"github.com/JonMunkholm/CrmAssist/internal/schema"
)

const (
	aiUnavailableNotice = "⚠️ AI-funktionalitet er ikke tilgængelig. Tilføj din OpenAI API key til .env filen for fuld CRM funktionalitet."
	aiUnavailableSQL    = "-- AI ikke tilgængelig - prøv med eksemplerne"
)

type pageData struct {
	AIAvailable bool
	Question    string
	SQL         string
	Columns     []string
	Rows        [][]string
	Explanation string
	Error       string
	Examples    []prompt.Example
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, pageData{})
}

func (s *Server) handleAskForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(r.PostFormValue("question"))
	data := pageData{Question: question}

	switch {
	case question == "":
	case !s.assistant.Available():
		data.Error = aiUnavailableNotice
		data.SQL = aiUnavailableSQL
	default:
		answer := s.assistant.Ask(r.Context(), question)
		data.SQL = answer.SQL
		data.Error = answer.Error
		data.Explanation = answer.Explanation
		data.Columns = answer.Columns
		data.Rows = tableCells(answer.Columns, answer.Rows)
	}
	s.renderPage(w, data)
}

func (s *Server) renderPage(w http.ResponseWriter, data pageData) {
	data.AIAvailable = s.assistant.Available()
	data.Examples = s.examples
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func tableCells(columns []string, rows []query.Row) [][]string {
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = formatCSVValue(row[col])
		}
		cells = append(cells, line)
	}
	return cells
}

type questionRequest struct {
	Question string `json:"question"`
}

func decodeQuestion(r *http.Request) (string, error) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.New("invalid JSON body")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", errors.New("question is required")
	}
	return question, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, assistant.Answer{Error: err.Error()})
		return
	}

	answer := s.assistant.Ask(r.Context(), question)
	respondJSON(w, answerStatus(answer), answer)
}

// answerStatus maps the stage an Ask stopped at to an HTTP status.
func answerStatus(a assistant.Answer) int {
	switch {
	case a.Error == "":
		return http.StatusOK
	case a.Error == assistant.AIUnavailable:
		return http.StatusServiceUnavailable
	case a.SQL == "":
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

type translateResponse struct {
	SQL      string `json:"sql,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, translateResponse{Error: err.Error()})
		return
	}

	sql, err := s.assistant.Translate(r.Context(), question)
	if err != nil {
		respondJSON(w, http.StatusBadGateway, translateResponse{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, translateResponse{SQL: sql, Degraded: !s.assistant.Available()})
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type queryResponse struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	Count      int      `json:"count"`
	More       bool     `json:"more"`
	DurationMs int64    `json:"durationMs"`
	Error      string   `json:"error,omitempty"`
}

// handleQuery runs a hand-written SELECT, used to try the example statements.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, queryResponse{Error: "invalid JSON body"})
		return
	}

	stmt := strings.TrimSpace(req.Query)
	if err := assistant.CheckStatement(stmt); err != nil {
		respondJSON(w, http.StatusBadRequest, queryResponse{Error: err.Error()})
		return
	}

	limit := clampLimit(req.Limit)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.executor.Execute(ctx, stmt)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, queryResponse{Error: err.Error()})
		return
	}

	resp := queryResponse{Columns: result.Columns, Rows: make([][]any, 0)}
	for _, row := range result.Rows {
		if len(resp.Rows) >= limit {
			resp.More = true
			break
		}
		values := make([]any, len(result.Columns))
		for i, col := range result.Columns {
			values[i] = row[col]
		}
		resp.Rows = append(resp.Rows, values)
	}
	resp.Count = len(resp.Rows)
	resp.DurationMs = time.Since(start).Milliseconds()

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	stmt := strings.TrimSpace(req.Query)
	if err := assistant.CheckStatement(stmt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	result, err := s.executor.Execute(ctx, stmt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=crm_export_%s.csv", time.Now().Format("2006-01-02")))

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write(result.Columns); err != nil {
		return
	}
	for _, row := range result.Rows {
		record := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			record[i] = formatCSVValue(row[col])
		}
		if err := csvWriter.Write(record); err != nil {
			s.logger.WarnContext(r.Context(), "csv export aborted",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

type statusResponse struct {
	AIAvailable   bool   `json:"ai_available"`
	DBAvailable   bool   `json:"db_available"`
	CustomerCount int64  `json:"customer_count"`
	Status        string `json:"status"`
	System        string `json:"system"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		AIAvailable: s.assistant.Available(),
		Status:      "partial",
		System:      systemName,
	}
	count, err := s.dashboard.CustomerCount(r.Context())
	if err == nil {
		resp.DBAvailable = true
		resp.CustomerCount = count
	}
	if resp.AIAvailable && resp.DBAvailable {
		resp.Status = "healthy"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dashboard.Stats(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := s.dashboard.Overview(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": overview})
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	listing, err := s.dashboard.List(r.Context(), chi.URLParam(r, "entity"))
	if errors.Is(err, crmdb.ErrUnknownEntity) {
		respondJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": listing})
}

type schemaResponse struct {
	Tables      []schema.Table `json:"tables"`
	TableCount  int            `json:"tableCount"`
	LastRefresh string         `json:"lastRefresh"`
}

func (s *Server) schemaSnapshot() schemaResponse {
	return schemaResponse{
		Tables:      s.schema.Tables(),
		TableCount:  s.schema.TableCount(),
		LastRefresh: s.schema.LastRefresh().Format(time.RFC3339),
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.schema == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "schema not loaded"})
		return
	}
	respondJSON(w, http.StatusOK, s.schemaSnapshot())
}

func (s *Server) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	if s.schema == nil || s.db == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "schema not loaded"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	if err := s.schema.Load(ctx, s.db); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, s.schemaSnapshot())
}

func formatCSVValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
