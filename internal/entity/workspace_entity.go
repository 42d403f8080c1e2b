package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Workspace groups conversations around one connected database. Each
// workspace owns exactly one DatabaseConnection.
type Workspace struct {
	Id          uuid.UUID
	UserId      uuid.UUID
	Name        string
	Description string
	Connection  *DatabaseConnection
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}

type DatabaseKind string

const (
	DatabaseKindPostgres DatabaseKind = "postgres"
)

// DatabaseConnection holds the credentials for a user's external database
// plus the schema snapshot captured at connect/refresh time.
type DatabaseConnection struct {
	Id                uuid.UUID
	WorkspaceId       uuid.UUID
	Kind              DatabaseKind
	ConnectionString  string
	SchemaSnapshot    json.RawMessage
	SchemaRefreshedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}
