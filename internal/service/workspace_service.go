package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/dto"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/entity"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/pkg/logger"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/memory"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/unitofwork"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/dbexec"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/schemaformat"

	"github.com/google/uuid"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
)

type IWorkspaceService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateWorkspaceRequest) (*dto.WorkspaceResponse, error)
	FindAll(ctx context.Context, userId uuid.UUID) ([]*dto.WorkspaceResponse, error)
	FindOne(ctx context.Context, userId, workspaceId uuid.UUID) (*dto.WorkspaceResponse, error)
	GetSchema(ctx context.Context, userId, workspaceId uuid.UUID) (*dto.WorkspaceSchemaResponse, error)
	Delete(ctx context.Context, userId, workspaceId uuid.UUID) error
	ValidateConnection(ctx context.Context, req *dto.ValidateConnectionRequest) (*dto.ValidateConnectionResponse, error)
	RefreshSchema(ctx context.Context, userId, workspaceId uuid.UUID) error
}

type workspaceService struct {
	uowFactory       unitofwork.RepositoryFactory
	introspector     *dbexec.Introspector
	schemaCache      *memory.SchemaCache
	publisherService IPublisherService
	logger           logger.ILogger
}

func NewWorkspaceService(
	uowFactory unitofwork.RepositoryFactory,
	introspector *dbexec.Introspector,
	schemaCache *memory.SchemaCache,
	publisherService IPublisherService,
	log logger.ILogger,
) IWorkspaceService {
	return &workspaceService{
		uowFactory:       uowFactory,
		introspector:     introspector,
		schemaCache:      schemaCache,
		publisherService: publisherService,
		logger:           log,
	}
}

func (s *workspaceService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateWorkspaceRequest) (*dto.WorkspaceResponse, error) {
	// Introspect before writing anything. A workspace whose connection we
	// cannot read is not created.
	snapshot, err := s.introspector.Snapshot(ctx, dbexec.Kind(req.Kind), req.ConnectionString)
	if err != nil {
		s.logger.Warn("WorkspaceService", "Schema introspection failed on create", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	now := time.Now()
	workspace := &entity.Workspace{
		Id:          uuid.New(),
		UserId:      userId,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
	}
	workspace.Connection = &entity.DatabaseConnection{
		Id:                uuid.New(),
		WorkspaceId:       workspace.Id,
		Kind:              entity.DatabaseKind(req.Kind),
		ConnectionString:  req.ConnectionString,
		SchemaSnapshot:    snapshot,
		SchemaRefreshedAt: &now,
		CreatedAt:         now,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.WorkspaceRepository().Create(ctx, workspace); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("WorkspaceService", "Workspace created", map[string]interface{}{
		"workspace_id": workspace.Id,
		"user_id":      userId,
	})

	return s.toResponse(workspace), nil
}

func (s *workspaceService) FindAll(ctx context.Context, userId uuid.UUID) ([]*dto.WorkspaceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	workspaces, err := uow.WorkspaceRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.WorkspaceResponse, len(workspaces))
	for i, w := range workspaces {
		responses[i] = s.toResponse(w)
	}
	return responses, nil
}

func (s *workspaceService) FindOne(ctx context.Context, userId, workspaceId uuid.UUID) (*dto.WorkspaceResponse, error) {
	workspace, err := s.ownedWorkspace(ctx, userId, workspaceId)
	if err != nil {
		return nil, err
	}
	return s.toResponse(workspace), nil
}

func (s *workspaceService) GetSchema(ctx context.Context, userId, workspaceId uuid.UUID) (*dto.WorkspaceSchemaResponse, error) {
	workspace, err := s.ownedWorkspace(ctx, userId, workspaceId)
	if err != nil {
		return nil, err
	}
	if workspace.Connection == nil {
		return nil, errors.New("workspace has no database connection")
	}

	return &dto.WorkspaceSchemaResponse{
		WorkspaceId: workspace.Id,
		Snapshot:    workspace.Connection.SchemaSnapshot,
		RefreshedAt: workspace.Connection.SchemaRefreshedAt,
	}, nil
}

func (s *workspaceService) Delete(ctx context.Context, userId, workspaceId uuid.UUID) error {
	workspace, err := s.ownedWorkspace(ctx, userId, workspaceId)
	if err != nil {
		return err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.WorkspaceRepository().Delete(ctx, workspace.Id); err != nil {
		return err
	}

	s.schemaCache.Invalidate(workspace.Id)
	return nil
}

func (s *workspaceService) ValidateConnection(ctx context.Context, req *dto.ValidateConnectionRequest) (*dto.ValidateConnectionResponse, error) {
	snapshot, err := s.introspector.Snapshot(ctx, dbexec.Kind(req.Kind), req.ConnectionString)
	if err != nil {
		return &dto.ValidateConnectionResponse{
			Reachable: false,
			Error:     err.Error(),
		}, nil
	}

	return &dto.ValidateConnectionResponse{
		Reachable:  true,
		TableCount: countTables(snapshot),
	}, nil
}

// RefreshSchema enqueues a background re-introspection job; the consumer
// worker performs the actual snapshot update.
func (s *workspaceService) RefreshSchema(ctx context.Context, userId, workspaceId uuid.UUID) error {
	if _, err := s.ownedWorkspace(ctx, userId, workspaceId); err != nil {
		return err
	}

	payload := dto.PublishRefreshSchemaMessage{
		WorkspaceId: workspaceId,
		UserId:      userId,
	}
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return s.publisherService.Publish(ctx, payloadJson)
}

func (s *workspaceService) ownedWorkspace(ctx context.Context, userId, workspaceId uuid.UUID) (*entity.Workspace, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	workspace, err := uow.WorkspaceRepository().FindOne(ctx,
		specification.ByID{ID: workspaceId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if workspace == nil {
		return nil, ErrWorkspaceNotFound
	}
	return workspace, nil
}

func (s *workspaceService) toResponse(w *entity.Workspace) *dto.WorkspaceResponse {
	res := &dto.WorkspaceResponse{
		Id:          w.Id,
		Name:        w.Name,
		Description: w.Description,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
	if w.Connection != nil {
		res.Kind = string(w.Connection.Kind)
		res.TableCount = countTables(w.Connection.SchemaSnapshot)
		res.SchemaRefreshedAt = w.Connection.SchemaRefreshedAt
	}
	return res
}

func countTables(snapshot json.RawMessage) int {
	var tables map[string][]schemaformat.Column
	if err := json.Unmarshal(snapshot, &tables); err != nil {
		return 0
	}
	return len(tables)
}
