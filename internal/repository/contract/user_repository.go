package contract

import (
	"context"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/entity"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	Update(ctx context.Context, user *entity.User) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error)

	CreateVerificationToken(ctx context.Context, token *entity.EmailVerificationToken) error
	FindVerificationToken(ctx context.Context, specs ...specification.Specification) (*entity.EmailVerificationToken, error)
	DeleteVerificationTokens(ctx context.Context, userId uuid.UUID) error
}
