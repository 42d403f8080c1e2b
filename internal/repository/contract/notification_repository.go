package contract

import (
	"context"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/model"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, userId uuid.UUID) error
}
