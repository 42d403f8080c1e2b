package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/entity"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/unitofwork"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	// Verify Wiring
	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.UserRepository())
	assert.NotNil(t, uow.WorkspaceRepository())
	assert.NotNil(t, uow.ConversationRepository())
	assert.NotNil(t, uow.MessageRepository())

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	err = sqlDB.Ping()
	assert.NoError(t, err)
	t.Log("Successfully connected to DB and initialized UnitOfWork Factory")

	t.Run("Transactional Message Sequencing Rolls Back", func(t *testing.T) {
		ctx := context.Background()
		uow := uowFactory.NewUnitOfWork(ctx)

		require.NoError(t, uow.Begin(ctx))
		defer uow.Rollback()

		userId := uuid.New()
		user := &entity.User{
			Id:       userId,
			Email:    "test-integration-" + uuid.New().String() + "@example.com",
			FullName: "Integration Test",
			Status:   entity.UserStatusActive,
		}
		require.NoError(t, uow.UserRepository().Create(ctx, user))

		workspace := &entity.Workspace{
			Id:        uuid.New(),
			UserId:    userId,
			Name:      "integration-ws",
			CreatedAt: time.Now(),
		}
		require.NoError(t, uow.WorkspaceRepository().Create(ctx, workspace))

		conversation := &entity.Conversation{
			Id:          uuid.New(),
			WorkspaceId: workspace.Id,
			UserId:      userId,
			Title:       "Integration round trip",
			CreatedAt:   time.Now(),
		}
		require.NoError(t, uow.ConversationRepository().Create(ctx, conversation))

		count, err := uow.MessageRepository().Count(ctx,
			specification.ByConversationID{ConversationID: conversation.Id})
		require.NoError(t, err)

		message := &entity.Message{
			Id:             uuid.New(),
			ConversationId: conversation.Id,
			UserId:         userId,
			Role:           entity.MessageRoleUser,
			Sequence:       int(count),
			Content:        "hello",
			CreatedAt:      time.Now(),
		}
		require.NoError(t, uow.MessageRepository().Create(ctx, message))

		// Count sees the uncommitted insert inside the same transaction.
		after, err := uow.MessageRepository().Count(ctx,
			specification.ByConversationID{ConversationID: conversation.Id})
		require.NoError(t, err)
		assert.Equal(t, count+1, after)

		// Rollback via defer: nothing persists past this test.
	})
}
