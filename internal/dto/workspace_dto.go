package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CreateWorkspaceRequest struct {
	Name             string `json:"name" validate:"required,min=1,max=255"`
	Description      string `json:"description" validate:"max=2000"`
	Kind             string `json:"kind" validate:"required,oneof=postgres"`
	ConnectionString string `json:"connection_string" validate:"required"`
}

type WorkspaceResponse struct {
	Id                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Kind              string     `json:"kind"`
	TableCount        int        `json:"table_count"`
	SchemaRefreshedAt *time.Time `json:"schema_refreshed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

type WorkspaceSchemaResponse struct {
	WorkspaceId uuid.UUID       `json:"workspace_id"`
	Snapshot    json.RawMessage `json:"snapshot"`
	RefreshedAt *time.Time      `json:"refreshed_at,omitempty"`
}

// PublishRefreshSchemaMessage is the job payload for the background
// schema-refresh worker.
type PublishRefreshSchemaMessage struct {
	WorkspaceId uuid.UUID `json:"workspace_id"`
	UserId      uuid.UUID `json:"user_id"`
}

type ValidateConnectionRequest struct {
	Kind             string `json:"kind" validate:"required,oneof=postgres"`
	ConnectionString string `json:"connection_string" validate:"required"`
}

type ValidateConnectionResponse struct {
	Reachable  bool   `json:"reachable"`
	TableCount int    `json:"table_count"`
	Error      string `json:"error,omitempty"`
}
