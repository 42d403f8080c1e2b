package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/constant"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/dto"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/entity"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/pkg/logger"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/memory"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/unitofwork"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/dbexec"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/events"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm"
	pktNats "github.com/DarshilChauhan1/sql-query-builder-llm/pkg/nats"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/schemaformat"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/sqlgen"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSchemaUnavailable    = errors.New("workspace has no database schema. please add or refresh the database connection")
	ErrEmptyPrompt          = errors.New("prompt must not be empty")
)

type IConversationService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateConversationRequest) (*dto.CreateConversationResponse, error)
	FindAll(ctx context.Context, userId, workspaceId uuid.UUID) ([]*dto.ConversationListResponse, error)
	GetMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.MessageResponse, error)
	Delete(ctx context.Context, userId, conversationId uuid.UUID) error

	// StreamTurn runs one full pipeline turn. Entry validation happens
	// before the channel is returned; afterwards every phase transition is
	// delivered as a StreamEvent until the channel closes.
	StreamTurn(ctx context.Context, userId uuid.UUID, req *dto.SendTurnRequest) (<-chan dto.StreamEvent, error)
}

type conversationService struct {
	uowFactory  unitofwork.RepositoryFactory
	provider    llm.LLMProvider
	generator   *sqlgen.Generator
	executor    *dbexec.Executor
	schemaCache *memory.SchemaCache
	natsPub     *pktNats.Publisher
	logger      logger.ILogger
}

func NewConversationService(
	uowFactory unitofwork.RepositoryFactory,
	provider llm.LLMProvider,
	generator *sqlgen.Generator,
	executor *dbexec.Executor,
	schemaCache *memory.SchemaCache,
	natsPub *pktNats.Publisher,
	log logger.ILogger,
) IConversationService {
	return &conversationService{
		uowFactory:  uowFactory,
		provider:    provider,
		generator:   generator,
		executor:    executor,
		schemaCache: schemaCache,
		natsPub:     natsPub,
		logger:      log,
	}
}

func (s *conversationService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateConversationRequest) (*dto.CreateConversationResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	workspace, err := uow.WorkspaceRepository().FindOne(ctx,
		specification.ByID{ID: req.WorkspaceId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if workspace == nil {
		return nil, ErrWorkspaceNotFound
	}
	if workspace.Connection == nil || len(workspace.Connection.SchemaSnapshot) == 0 {
		return nil, ErrSchemaUnavailable
	}

	// Title first: a conversation without a title is not created.
	title, err := s.generateTitle(ctx, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate conversation title: %w", err)
	}

	conversation := &entity.Conversation{
		Id:          uuid.New(),
		WorkspaceId: workspace.Id,
		UserId:      userId,
		Title:       title,
		CreatedAt:   time.Now(),
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return nil, err
	}

	firstMessage := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		UserId:         userId,
		Role:           entity.MessageRoleUser,
		Sequence:       0,
		Content:        req.Prompt,
		CreatedAt:      time.Now(),
	}
	if err := uow.MessageRepository().Create(ctx, firstMessage); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	return &dto.CreateConversationResponse{
		ConversationId: conversation.Id,
		Title:          conversation.Title,
		Prompt:         firstMessage.Content,
	}, nil
}

func (s *conversationService) FindAll(ctx context.Context, userId, workspaceId uuid.UUID) ([]*dto.ConversationListResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	specs := []specification.Specification{
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	}
	if workspaceId != uuid.Nil {
		specs = append(specs, specification.ByWorkspaceID{WorkspaceID: workspaceId})
	}

	conversations, err := uow.ConversationRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.ConversationListResponse, len(conversations))
	for i, c := range conversations {
		responses[i] = &dto.ConversationListResponse{
			Id:          c.Id,
			WorkspaceId: c.WorkspaceId,
			Title:       c.Title,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
	}
	return responses, nil
}

func (s *conversationService) GetMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.MessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.ownedConversation(ctx, uow, userId, conversationId); err != nil {
		return nil, err
	}

	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "sequence", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.MessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = &dto.MessageResponse{
			Id:          m.Id,
			Role:        string(m.Role),
			MessageId:   m.Sequence,
			Content:     m.Content,
			SqlQuery:    m.SqlQuery,
			QueryResult: m.QueryResult,
			CreatedAt:   m.CreatedAt,
		}
	}
	return responses, nil
}

func (s *conversationService) Delete(ctx context.Context, userId, conversationId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := s.ownedConversation(ctx, uow, userId, conversationId)
	if err != nil {
		return err
	}
	return uow.ConversationRepository().Delete(ctx, conversation.Id)
}

// turnState carries the artifacts produced so far through the phases of a
// single turn.
type turnState struct {
	conversation *entity.Conversation
	connection   *entity.DatabaseConnection
	prompt       string
	userMessage  *entity.Message
	sqlQuery     string
	result       *dbexec.Result
	narration    string
	failed       bool
}

func (s *conversationService) StreamTurn(ctx context.Context, userId uuid.UUID, req *dto.SendTurnRequest) (<-chan dto.StreamEvent, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	// Entry validation, before any state transition. No partial message is
	// written when this fails.
	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := s.ownedConversation(ctx, uow, userId, req.ConversationId)
	if err != nil {
		return nil, err
	}

	workspace, err := uow.WorkspaceRepository().FindOne(ctx,
		specification.ByID{ID: conversation.WorkspaceId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if workspace == nil {
		return nil, ErrWorkspaceNotFound
	}
	if workspace.Connection == nil || len(workspace.Connection.SchemaSnapshot) == 0 {
		return nil, ErrSchemaUnavailable
	}

	state := &turnState{
		conversation: conversation,
		connection:   workspace.Connection,
		prompt:       req.Prompt,
	}

	out := make(chan dto.StreamEvent, 16)
	go func() {
		defer close(out)
		s.runTurn(ctx, userId, state, out)
	}()
	return out, nil
}

// runTurn drives the phases strictly in order. Generation failure skips
// execution and narration; execution failure still narrates over an empty
// result set. Every reachable path ends with exactly one assistant message.
func (s *conversationService) runTurn(ctx context.Context, userId uuid.UUID, state *turnState, out chan<- dto.StreamEvent) {
	emit := func(ev dto.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Phase: user message, durable before any model call.
	userMessage, err := s.saveMessage(ctx, userId, state.conversation.Id, entity.MessageRoleUser, state.prompt, "", nil)
	if err != nil {
		s.logger.Error("ConversationService", "Failed to persist user message", map[string]interface{}{"error": err.Error()})
		emit(dto.StreamEvent{Type: dto.EventError, Message: "failed to save your message"})
		return
	}
	// From here on the turn is durable and owes the conversation exactly
	// one assistant message. Emits are best effort: a canceled stream stops
	// delivery, never persistence.
	state.userMessage = userMessage
	emit(dto.StreamEvent{Type: dto.EventUserMessageCreated, Data: dto.UserMessageCreatedData{
		MessageId: userMessage.Sequence,
		Id:        userMessage.Id,
	}})

	// Phase: SQL generation.
	formattedSchema := s.formattedSchema(state.conversation.WorkspaceId, state.connection.SchemaSnapshot)
	sqlQuery, err := s.generator.Generate(ctx, state.prompt, formattedSchema)
	if err != nil {
		s.logger.Warn("ConversationService", "SQL generation failed", map[string]interface{}{
			"conversation_id": state.conversation.Id,
			"error":           err.Error(),
		})
		state.failed = true
		emit(dto.StreamEvent{Type: dto.EventError, Message: "could not generate a query for your question"})
		s.finishTurn(ctx, userId, state, emit)
		return
	}
	state.sqlQuery = sqlQuery

	// Back-fill the user message with the generated SQL.
	userMessage.SqlQuery = sqlQuery
	if err := s.updateMessage(context.WithoutCancel(ctx), userMessage); err != nil {
		s.logger.Warn("ConversationService", "Failed to back-fill user message SQL", map[string]interface{}{"error": err.Error()})
	}
	emit(dto.StreamEvent{Type: dto.EventSqlGenerated, Data: dto.SqlGeneratedData{Query: sqlQuery}})

	// Phase: execution. Failure here is recoverable: narrate over an empty
	// result set instead of terminating.
	result, err := s.executor.Execute(ctx, dbexec.Kind(state.connection.Kind), state.connection.ConnectionString, sqlQuery)
	if err != nil {
		s.logger.Warn("ConversationService", "Query execution failed", map[string]interface{}{
			"conversation_id": state.conversation.Id,
			"error":           err.Error(),
		})
		state.failed = true
		emit(dto.StreamEvent{Type: dto.EventError, Message: "query execution failed against your database"})
		result = &dbexec.Result{Rows: []map[string]interface{}{}}
	} else {
		emit(dto.StreamEvent{Type: dto.EventQueryExecuted, Data: dto.QueryExecutedData{
			RowCount:  result.RowCount,
			Truncated: result.Truncated,
		}})
	}
	state.result = result

	// Phase: narration.
	s.streamNarration(ctx, state, emit)

	s.finishTurn(ctx, userId, state, emit)
}

func (s *conversationService) streamNarration(ctx context.Context, state *turnState, emit func(dto.StreamEvent) bool) {
	resultsJSON, err := json.Marshal(state.result.Rows)
	if err != nil {
		resultsJSON = []byte("[]")
	}

	prompt := fmt.Sprintf("%s\nHere is the SQL Query Results: %s\nUser's Question: %s",
		constant.NarrationSystemPromptV1, string(resultsJSON), state.prompt)

	chunks, err := s.provider.ChatStream(ctx,
		[]llm.Message{{Role: "user", Content: prompt}},
		llm.WithTemperature(0.2),
		llm.WithMaxTokens(1024),
	)
	if err != nil {
		s.logger.Warn("ConversationService", "Narration stream failed to start", map[string]interface{}{"error": err.Error()})
		state.failed = true
		emit(dto.StreamEvent{Type: dto.EventError, Message: "failed to generate a response"})
		return
	}

	if !emit(dto.StreamEvent{Type: dto.EventLLMStreamStart}) {
		return
	}

	var full strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			// Chunks already delivered are kept; the accumulated partial
			// text is still persisted.
			s.logger.Warn("ConversationService", "Narration stream broke mid-way", map[string]interface{}{"error": chunk.Err.Error()})
			state.failed = true
			emit(dto.StreamEvent{Type: dto.EventError, Message: "response stream was interrupted"})
			break
		}
		if chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if !emit(dto.StreamEvent{Type: dto.EventLLMChunk, Data: chunk.Content}) {
			break
		}
	}
	state.narration = full.String()
}

// finishTurn writes the single assistant message this turn is contractually
// owed, on success and on every handled failure path.
func (s *conversationService) finishTurn(ctx context.Context, userId uuid.UUID, state *turnState, emit func(dto.StreamEvent) bool) {
	content := state.narration
	if content == "" {
		content = constant.ApologyNarration
	}

	var resultJSON json.RawMessage
	if state.result != nil {
		if b, err := json.Marshal(state.result); err == nil {
			resultJSON = b
		}
	}

	// The terminal write must land even when the client hung up and the
	// stream context is already canceled.
	persistCtx := context.WithoutCancel(ctx)
	assistantMessage, err := s.saveMessage(persistCtx, userId, state.conversation.Id, entity.MessageRoleAssistant, content, state.sqlQuery, resultJSON)
	if err != nil {
		// The terminal contract cannot be honored; surface a hard error.
		s.logger.Error("ConversationService", "Failed to persist assistant message", map[string]interface{}{
			"conversation_id": state.conversation.Id,
			"error":           err.Error(),
		})
		emit(dto.StreamEvent{Type: dto.EventError, Message: "failed to save the assistant response"})
		return
	}

	emit(dto.StreamEvent{Type: dto.EventAssistantMessageSaved, Data: dto.AssistantMessageSavedData{
		MessageId: assistantMessage.Sequence,
		Id:        assistantMessage.Id,
		Content:   assistantMessage.Content,
	}})

	if s.natsPub != nil {
		var event events.Event
		if state.failed {
			event = events.NewConversationFailed(userId.String(), state.conversation.Id.String(), "pipeline completed with errors")
		} else {
			event = events.NewConversationCompleted(userId.String(), state.conversation.Id.String(), state.conversation.Title)
		}
		if err := s.natsPub.Publish(persistCtx, event); err != nil {
			s.logger.Warn("ConversationService", "Failed to publish turn event", map[string]interface{}{"error": err.Error()})
		}
	}
}

// sequenceRetries bounds how often a writer recounts after losing the
// unique-index race on (conversation_id, sequence).
const sequenceRetries = 3

// saveMessage assigns the next sequence number and inserts the row. The
// unique index on (conversation_id, sequence) is what makes the number
// authoritative: a concurrent writer that counted the same value fails the
// insert and recounts.
func (s *conversationService) saveMessage(ctx context.Context, userId, conversationId uuid.UUID, role entity.MessageRole, content, sqlQuery string, result json.RawMessage) (*entity.Message, error) {
	var lastErr error
	for attempt := 0; attempt < sequenceRetries; attempt++ {
		message, err := s.insertSequencedMessage(ctx, userId, conversationId, role, content, sqlQuery, result)
		if err == nil {
			return message, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("message sequence contention: %w", lastErr)
}

func (s *conversationService) insertSequencedMessage(ctx context.Context, userId, conversationId uuid.UUID, role entity.MessageRole, content, sqlQuery string, result json.RawMessage) (*entity.Message, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	count, err := uow.MessageRepository().Count(ctx, specification.ByConversationID{ConversationID: conversationId})
	if err != nil {
		return nil, err
	}

	message := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		UserId:         userId,
		Role:           role,
		Sequence:       int(count),
		Content:        content,
		SqlQuery:       sqlQuery,
		QueryResult:    result,
		CreatedAt:      time.Now(),
	}
	if err := uow.MessageRepository().Create(ctx, message); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return message, nil
}

func (s *conversationService) updateMessage(ctx context.Context, message *entity.Message) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.MessageRepository().Update(ctx, message)
}

func (s *conversationService) formattedSchema(workspaceId uuid.UUID, snapshot json.RawMessage) string {
	if cached, found := s.schemaCache.Get(workspaceId); found {
		return cached
	}
	formatted := schemaformat.Format(snapshot)
	s.schemaCache.Save(workspaceId, formatted)
	return formatted
}

func (s *conversationService) generateTitle(ctx context.Context, prompt string) (string, error) {
	titlePrompt := fmt.Sprintf(constant.TitlePromptV1, prompt)
	raw, err := s.provider.Generate(ctx, titlePrompt,
		llm.WithTemperature(0.3),
		llm.WithMaxTokens(20),
	)
	if err != nil {
		return "", err
	}

	title := strings.Trim(strings.TrimSpace(raw), `"`)
	if title == "" {
		return "", errors.New("empty title from model")
	}
	return title, nil
}

func (s *conversationService) ownedConversation(ctx context.Context, uow unitofwork.UnitOfWork, userId, conversationId uuid.UUID) (*entity.Conversation, error) {
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}
