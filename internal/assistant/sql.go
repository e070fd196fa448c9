package assistant

import (
	"errors"
	"strings"
)

var (
	ErrEmptySQL            = errors.New("model returned an empty SQL statement")
	ErrStatementNotAllowed = errors.New("only SELECT or WITH statements are allowed")
	errEmptyStatement      = errors.New("empty statement")
)

const fence = "```"

// StripFences removes a leading markdown code fence (optionally tagged sql, in
// any case) and its closing fence. Unfenced text is only trimmed.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, fence) {
		return s
	}
	s = s[len(fence):]
	if len(s) >= 3 && strings.EqualFold(s[:3], "sql") {
		s = s[3:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

// CheckStatement accepts statements that start with SELECT or WITH.
func CheckStatement(raw string) error {
	query := strings.TrimSpace(raw)
	if query == "" {
		return errEmptyStatement
	}
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return ErrStatementNotAllowed
	}
	return nil
}
