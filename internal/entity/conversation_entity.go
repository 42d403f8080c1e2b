package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id          uuid.UUID
	WorkspaceId uuid.UUID
	UserId      uuid.UUID
	Title       string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one side of a turn. Sequence starts at 0 and increases by one
// per message within a conversation; a turn always writes the user message
// first and the assistant message last.
type Message struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	UserId         uuid.UUID
	Role           MessageRole
	Sequence       int
	Content        string
	SqlQuery       string
	QueryResult    json.RawMessage
	CreatedAt      time.Time
}
