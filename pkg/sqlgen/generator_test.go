package sqlgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm"
)

// stubProvider returns a canned response or error for Generate.
type stubProvider struct {
	response string
	err      error
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return s.response, s.err
}

func (s *stubProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return s.response, s.err
}

func (s *stubProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     string
		wantErr  bool
	}{
		{
			name:     "plain json",
			response: `{"query": "SELECT id, email FROM \"User\" WHERE created_at >= NOW() - INTERVAL '7 days'"}`,
			want:     `SELECT id, email FROM "User" WHERE created_at >= NOW() - INTERVAL '7 days'`,
		},
		{
			name:     "fenced json",
			response: "```json\n{\"query\": \"SELECT name FROM users\"}\n```",
			want:     "SELECT name FROM users",
		},
		{
			name:     "trailing semicolon and comment stripped",
			response: `{"query": "SELECT name FROM users; -- all users"}`,
			want:     "SELECT name FROM users",
		},
		{
			name:     "cte allowed",
			response: `{"query": "WITH recent AS (SELECT id FROM orders) SELECT count(*) FROM recent"}`,
			want:     "WITH recent AS (SELECT id FROM orders) SELECT count(*) FROM recent",
		},
		{
			name:     "mutating statement rejected",
			response: `{"query": "DELETE FROM users WHERE id = 1"}`,
			wantErr:  true,
		},
		{
			name:     "ddl rejected",
			response: `{"query": "DROP TABLE users"}`,
			wantErr:  true,
		},
		{
			name:     "missing query field",
			response: `{"sql": "SELECT 1"}`,
			wantErr:  true,
		},
		{
			name:     "empty query field",
			response: `{"query": "   "}`,
			wantErr:  true,
		},
		{
			name:     "not json",
			response: `SELECT 1`,
			wantErr:  true,
		},
		{
			name:    "provider failure",
			err:     errors.New("model unavailable"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(&stubProvider{response: tt.response, err: tt.err})
			got, err := g.Generate(context.Background(), "show me users", "Table: users\n  - id (UUID, NOT NULL)")

			if tt.wantErr {
				if err == nil {
					t.Fatalf("Generate() = %q, want error", got)
				}
				var genErr *GenerationError
				if !errors.As(err, &genErr) {
					t.Fatalf("error %v is not a GenerationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Generate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeDialectRewrites(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "top clause to limit",
			query: "SELECT TOP 5 name FROM users ORDER BY created_at DESC",
			want:  "SELECT name FROM users ORDER BY created_at DESC LIMIT 5",
		},
		{
			name:  "bracket identifiers to double quotes",
			query: `SELECT [first name] FROM [User]`,
			want:  `SELECT "first name" FROM "User"`,
		},
		{
			name:  "getdate to now",
			query: "SELECT id FROM orders WHERE placed_at > GETDATE()",
			want:  "SELECT id FROM orders WHERE placed_at > NOW()",
		},
		{
			name:  "curdate to current_date",
			query: "SELECT id FROM orders WHERE day = CURDATE()",
			want:  "SELECT id FROM orders WHERE day = CURRENT_DATE",
		},
		{
			name:  "block comments removed",
			query: "SELECT id /* the key */ FROM users;",
			want:  "SELECT id   FROM users",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.query); got != tt.want {
				t.Errorf("Sanitize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", true},
		{"  \n select id from users", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"-- comment\nSELECT 1", true},
		{"/* leading */ WITH x AS (SELECT 1) SELECT 1", true},
		{"UPDATE users SET name = 'x'", false},
		{"DELETE FROM users", false},
		{"INSERT INTO users VALUES (1)", false},
		{"TRUNCATE users", false},
		{"-- sneaky\nDROP TABLE users", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsReadOnly(tt.query); got != tt.want {
			t.Errorf("IsReadOnly(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestGeneratePromptContainsSchemaAndQuestion(t *testing.T) {
	var captured string
	g := NewGenerator(&capturingProvider{
		capture:  &captured,
		response: `{"query": "SELECT 1"}`,
	})

	_, err := g.Generate(context.Background(), "how many invoices", "Table: invoices")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(captured, "how many invoices") {
		t.Error("prompt does not embed the user question")
	}
	if !strings.Contains(captured, "Table: invoices") {
		t.Error("prompt does not embed the formatted schema")
	}
}

type capturingProvider struct {
	capture  *string
	response string
}

func (c *capturingProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	*c.capture = prompt
	return c.response, nil
}

func (c *capturingProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return c.response, nil
}

func (c *capturingProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}
