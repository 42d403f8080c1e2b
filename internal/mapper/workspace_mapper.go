package mapper

import (
	"encoding/json"
	"time"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/entity"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WorkspaceMapper struct{}

func NewWorkspaceMapper() *WorkspaceMapper {
	return &WorkspaceMapper{}
}

func (m *WorkspaceMapper) WorkspaceToEntity(w *model.Workspace) *entity.Workspace {
	if w == nil {
		return nil
	}

	var deletedAt *time.Time
	if w.DeletedAt.Valid {
		t := w.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !w.UpdatedAt.IsZero() {
		t := w.UpdatedAt
		updatedAt = &t
	}

	return &entity.Workspace{
		Id:          w.Id,
		UserId:      w.UserId,
		Name:        w.Name,
		Description: w.Description,
		Connection:  m.ConnectionToEntity(w.Connection),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
		IsDeleted:   w.DeletedAt.Valid,
	}
}

func (m *WorkspaceMapper) WorkspaceToModel(w *entity.Workspace) *model.Workspace {
	if w == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if w.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *w.DeletedAt, Valid: true}
	} else if w.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if w.UpdatedAt != nil {
		updatedAt = *w.UpdatedAt
	}

	return &model.Workspace{
		Id:          w.Id,
		UserId:      w.UserId,
		Name:        w.Name,
		Description: w.Description,
		Connection:  m.ConnectionToModel(w.Connection),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
	}
}

func (m *WorkspaceMapper) ConnectionToEntity(c *model.DatabaseConnection) *entity.DatabaseConnection {
	if c == nil {
		return nil
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.DatabaseConnection{
		Id:                c.Id,
		WorkspaceId:       c.WorkspaceId,
		Kind:              entity.DatabaseKind(c.Kind),
		ConnectionString:  c.ConnectionString,
		SchemaSnapshot:    json.RawMessage(c.SchemaSnapshot),
		SchemaRefreshedAt: c.SchemaRefreshedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         updatedAt,
	}
}

func (m *WorkspaceMapper) ConnectionToModel(c *entity.DatabaseConnection) *model.DatabaseConnection {
	if c == nil {
		return nil
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.DatabaseConnection{
		Id:                c.Id,
		WorkspaceId:       c.WorkspaceId,
		Kind:              string(c.Kind),
		ConnectionString:  c.ConnectionString,
		SchemaSnapshot:    datatypes.JSON(c.SchemaSnapshot),
		SchemaRefreshedAt: c.SchemaRefreshedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         updatedAt,
	}
}
