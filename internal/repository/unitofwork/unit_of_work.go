package unitofwork

import (
	"context"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() contract.UserRepository
	WorkspaceRepository() contract.WorkspaceRepository
	ConversationRepository() contract.ConversationRepository
	MessageRepository() contract.MessageRepository
	NotificationRepository() contract.NotificationRepository
}
