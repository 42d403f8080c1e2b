package sqlgen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm"
)

// GenerationError marks any failure to obtain a safe, executable SELECT from
// the model. Callers treat it as fatal for the execution phase of a turn.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sql generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("sql generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

const promptTemplate = `You are an expert SQL query generator.
Your job is to take a natural language request from the user and generate a correct, executable SQL query.
Understand the user's intent and the context provided by the schema.

Question: %s

### Context:
- You will be given a database schema. Use it as the single source of truth.
- Do not make up tables or columns that are not in the schema.
- Always respect table names, column names, and data types exactly as provided.

### Rules:
1. The query must be valid SQL and executable in PostgreSQL.
2. Always include the full SELECT clause instead of SELECT *, unless the user explicitly requests all columns.
3. Only read data. Never generate INSERT, UPDATE, DELETE, DROP, or any other mutating statement.
4. Generate exactly one statement.
5. If the user query is ambiguous, pick the most logical interpretation based on the schema.
6. When filtering, use proper operators (=, ILIKE, IN, ...) depending on context.
7. Use ORDER BY or LIMIT only if requested or clearly implied.

### Database Schema:
%s

### Output:
Return a JSON object with a single "query" field containing pure, executable SQL.
NO comments, assumptions, or explanations inside the SQL.`

// querySchema constrains the completion to a single-field JSON object.
var querySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"query": map[string]interface{}{"type": "string"},
	},
	"required":             []string{"query"},
	"additionalProperties": false,
}

type Generator struct {
	provider llm.LLMProvider
}

func NewGenerator(provider llm.LLMProvider) *Generator {
	return &Generator{provider: provider}
}

// Generate asks the model for a single read-only SQL statement answering the
// prompt against the formatted schema. The output is sanitized and dialect
// mismatches are rewritten; anything that is not a SELECT/WITH statement is
// rejected before it can reach an executor.
func (g *Generator) Generate(ctx context.Context, prompt, formattedSchema string) (string, error) {
	full := fmt.Sprintf(promptTemplate, prompt, formattedSchema)

	raw, err := g.provider.Generate(ctx, full,
		llm.WithTemperature(0.1),
		llm.WithJSONSchema("query_schema", querySchema),
	)
	if err != nil {
		return "", &GenerationError{Reason: "model call failed", Err: err}
	}

	query, err := extractQuery(raw)
	if err != nil {
		return "", err
	}

	query = Sanitize(query)
	if query == "" {
		return "", &GenerationError{Reason: "model returned an empty query"}
	}

	if !IsReadOnly(query) {
		return "", &GenerationError{Reason: fmt.Sprintf("statement is not a read-only query: %q", truncate(query, 80))}
	}

	return query, nil
}

func extractQuery(raw string) (string, error) {
	// Models occasionally wrap the JSON in markdown fences despite the
	// response format contract.
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "", &GenerationError{Reason: "response is not valid JSON", Err: err}
	}
	if strings.TrimSpace(payload.Query) == "" {
		return "", &GenerationError{Reason: "response is missing the query field"}
	}
	return payload.Query, nil
}

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	topClauseRe    = regexp.MustCompile(`(?i)^\s*SELECT\s+TOP\s+(\d+)\s+`)
	bracketIdentRe = regexp.MustCompile(`\[([^\]\[]+)\]`)
	getDateRe      = regexp.MustCompile(`(?i)\bGETDATE\s*\(\s*\)`)
	curDateRe      = regexp.MustCompile(`(?i)\bCURDATE\s*\(\s*\)`)
)

// Sanitize strips comments and trailing terminators and canonicalizes a small
// set of known dialect slips (T-SQL TOP and brackets, MySQL CURDATE) into
// PostgreSQL form.
func Sanitize(query string) string {
	q := blockCommentRe.ReplaceAllString(query, " ")
	q = lineCommentRe.ReplaceAllString(q, " ")
	q = strings.TrimSpace(q)
	q = strings.TrimRight(q, "; \t\n")

	// SELECT TOP n ... -> SELECT ... LIMIT n
	if m := topClauseRe.FindStringSubmatch(q); m != nil {
		q = topClauseRe.ReplaceAllString(q, "SELECT ")
		q = q + " LIMIT " + m[1]
	}

	q = bracketIdentRe.ReplaceAllString(q, `"$1"`)
	q = getDateRe.ReplaceAllString(q, "NOW()")
	q = curDateRe.ReplaceAllString(q, "CURRENT_DATE")

	return strings.TrimSpace(q)
}

// IsReadOnly reports whether the statement begins with a read-only query form
// (SELECT or WITH), ignoring leading whitespace and comments. This is the
// hard gate in front of execution.
func IsReadOnly(query string) bool {
	q := blockCommentRe.ReplaceAllString(query, " ")
	q = lineCommentRe.ReplaceAllString(q, " ")
	q = strings.ToLower(strings.TrimSpace(q))
	return strings.HasPrefix(q, "select") || strings.HasPrefix(q, "with")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
