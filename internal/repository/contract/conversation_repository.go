package contract

import (
	"context"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/entity"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	Update(ctx context.Context, conversation *entity.Conversation) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error)
}

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	Update(ctx context.Context, message *entity.Message) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Message, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	// Count backs sequence-number assignment; call it inside the same
	// transaction as the Create that consumes the number.
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
