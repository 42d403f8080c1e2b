package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Workspace struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId      uuid.UUID `gorm:"type:uuid;not null;index"` // User ownership for data isolation
	Name        string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:text"`
	// One connection per workspace, loaded eagerly by the repository.
	Connection *DatabaseConnection `gorm:"foreignKey:WorkspaceId"`
	CreatedAt  time.Time           `gorm:"autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"autoUpdateTime"`
	DeletedAt  gorm.DeletedAt      `gorm:"index"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

type DatabaseConnection struct {
	Id                uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	WorkspaceId       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	Kind              string         `gorm:"type:varchar(50);not null;default:'postgres'"`
	ConnectionString  string         `gorm:"type:text;not null"`
	SchemaSnapshot    datatypes.JSON `gorm:"type:jsonb"`
	SchemaRefreshedAt *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (DatabaseConnection) TableName() string {
	return "database_connections"
}
