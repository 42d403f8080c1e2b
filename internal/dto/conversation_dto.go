package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	WorkspaceId uuid.UUID `json:"workspace_id" validate:"required"`
	Prompt      string    `json:"prompt" validate:"required,min=1"`
}

type CreateConversationResponse struct {
	ConversationId uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title"`
	Prompt         string    `json:"prompt"`
}

type SendTurnRequest struct {
	ConversationId uuid.UUID `json:"conversation_id" validate:"required"`
	Prompt         string    `json:"prompt" validate:"required,min=1"`
}

type ConversationListResponse struct {
	Id          uuid.UUID  `json:"id"`
	WorkspaceId uuid.UUID  `json:"workspace_id"`
	Title       string     `json:"title"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type MessageResponse struct {
	Id          uuid.UUID       `json:"id"`
	Role        string          `json:"role"`
	MessageId   int             `json:"messageId"`
	Content     string          `json:"content"`
	SqlQuery    string          `json:"sqlQuery,omitempty"`
	QueryResult json.RawMessage `json:"queryResult,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Stream event tags, one per pipeline phase transition. Events are
// ephemeral: produced during a turn, pushed to the live connection,
// never persisted.
const (
	EventUserMessageCreated    = "user_message_created"
	EventSqlGenerated          = "sql_generated"
	EventQueryExecuted         = "query_executed"
	EventLLMStreamStart        = "llm_stream_start"
	EventLLMChunk              = "llm_chunk"
	EventAssistantMessageSaved = "assistant_message_saved"
	EventError                 = "error"
)

// StreamEvent is the tagged union delivered over the server-push channel.
// Data carries the tag-specific payload; Message is set only on error.
type StreamEvent struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type UserMessageCreatedData struct {
	MessageId int       `json:"messageId"`
	Id        uuid.UUID `json:"id"`
}

type SqlGeneratedData struct {
	Query string `json:"query"`
}

type QueryExecutedData struct {
	RowCount  int  `json:"rowCount"`
	Truncated bool `json:"truncated,omitempty"`
}

type AssistantMessageSavedData struct {
	MessageId int       `json:"messageId"`
	Id        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
}
