package events

import "time"

// Event type codes carried on the bus. Subjects are derived from these
// (events.<code>), so renaming one is a wire-level change.
const (
	TypeConversationCompleted    = "CONVERSATION_COMPLETED"
	TypeConversationFailed       = "CONVERSATION_FAILED"
	TypeWorkspaceSchemaRefreshed = "WORKSPACE_SCHEMA_REFRESHED"
)

func NewConversationCompleted(userID, conversationID, title string) Event {
	return BaseEvent{
		Type: TypeConversationCompleted,
		Data: map[string]interface{}{
			"user_id":         userID,
			"conversation_id": conversationID,
			"title":           title,
		},
		OccurredAt: time.Now(),
	}
}

func NewConversationFailed(userID, conversationID, reason string) Event {
	return BaseEvent{
		Type: TypeConversationFailed,
		Data: map[string]interface{}{
			"user_id":         userID,
			"conversation_id": conversationID,
			"reason":          reason,
		},
		OccurredAt: time.Now(),
	}
}

func NewWorkspaceSchemaRefreshed(userID, workspaceID string, tableCount int) Event {
	return BaseEvent{
		Type: TypeWorkspaceSchemaRefreshed,
		Data: map[string]interface{}{
			"user_id":      userID,
			"workspace_id": workspaceID,
			"table_count":  tableCount,
		},
		OccurredAt: time.Now(),
	}
}
