package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/constant"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/dto"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/entity"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/contract"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/memory"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/specification"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/repository/unitofwork"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/dbexec"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm"
	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/sqlgen"
)

// --- in-memory persistence fakes ---

type memStore struct {
	mu            sync.Mutex
	workspace     *entity.Workspace
	conversations []*entity.Conversation
	messages      []*entity.Message

	failCreateRole entity.MessageRole
	staleCounts    int // Count under-reports by one while positive
}

func (s *memStore) messagesFor(conversationId uuid.UUID) []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Message
	for _, m := range s.messages {
		if m.ConversationId == conversationId {
			out = append(out, m)
		}
	}
	return out
}

type memFactory struct{ store *memStore }

func (f *memFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &memUow{store: f.store}
}

type memUow struct{ store *memStore }

func (u *memUow) Begin(ctx context.Context) error { return nil }
func (u *memUow) Commit() error                   { return nil }
func (u *memUow) Rollback() error                 { return nil }

func (u *memUow) UserRepository() contract.UserRepository { return nil }
func (u *memUow) NotificationRepository() contract.NotificationRepository {
	return nil
}
func (u *memUow) WorkspaceRepository() contract.WorkspaceRepository {
	return &memWorkspaceRepo{store: u.store}
}
func (u *memUow) ConversationRepository() contract.ConversationRepository {
	return &memConversationRepo{store: u.store}
}
func (u *memUow) MessageRepository() contract.MessageRepository {
	return &memMessageRepo{store: u.store}
}

type memWorkspaceRepo struct{ store *memStore }

func (r *memWorkspaceRepo) Create(ctx context.Context, w *entity.Workspace) error { return nil }
func (r *memWorkspaceRepo) Update(ctx context.Context, w *entity.Workspace) error { return nil }
func (r *memWorkspaceRepo) Delete(ctx context.Context, id uuid.UUID) error        { return nil }
func (r *memWorkspaceRepo) UpdateConnection(ctx context.Context, c *entity.DatabaseConnection) error {
	return nil
}
func (r *memWorkspaceRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Workspace, error) {
	return nil, nil
}
func (r *memWorkspaceRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Workspace, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w := r.store.workspace
	if w == nil {
		return nil, nil
	}
	for _, spec := range specs {
		switch sp := spec.(type) {
		case specification.ByID:
			if sp.ID != w.Id {
				return nil, nil
			}
		case specification.UserOwnedBy:
			if sp.UserID != w.UserId {
				return nil, nil
			}
		}
	}
	return w, nil
}

type memConversationRepo struct{ store *memStore }

func (r *memConversationRepo) Create(ctx context.Context, c *entity.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.conversations = append(r.store.conversations, c)
	return nil
}
func (r *memConversationRepo) Update(ctx context.Context, c *entity.Conversation) error { return nil }
func (r *memConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.conversations[:0]
	for _, c := range r.store.conversations {
		if c.Id != id {
			kept = append(kept, c)
		}
	}
	r.store.conversations = kept
	return nil
}
func (r *memConversationRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.conversations {
		match := true
		for _, spec := range specs {
			switch sp := spec.(type) {
			case specification.ByID:
				if sp.ID != c.Id {
					match = false
				}
			case specification.UserOwnedBy:
				if sp.UserID != c.UserId {
					match = false
				}
			}
		}
		if match {
			return c, nil
		}
	}
	return nil, nil
}
func (r *memConversationRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]*entity.Conversation(nil), r.store.conversations...), nil
}

type memMessageRepo struct{ store *memStore }

func (r *memMessageRepo) Create(ctx context.Context, m *entity.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failCreateRole != "" && m.Role == r.store.failCreateRole {
		return errors.New("storage unavailable")
	}
	for _, existing := range r.store.messages {
		if existing.ConversationId == m.ConversationId && existing.Sequence == m.Sequence {
			return gorm.ErrDuplicatedKey
		}
	}
	r.store.messages = append(r.store.messages, m)
	return nil
}
func (r *memMessageRepo) Update(ctx context.Context, m *entity.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, existing := range r.store.messages {
		if existing.Id == m.Id {
			r.store.messages[i] = m
			return nil
		}
	}
	return errors.New("message not found")
}
func (r *memMessageRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Message, error) {
	return nil, nil
}
func (r *memMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	for _, spec := range specs {
		if sp, ok := spec.(specification.ByConversationID); ok {
			return r.store.messagesFor(sp.ConversationID), nil
		}
	}
	return nil, nil
}
func (r *memMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	for _, spec := range specs {
		if sp, ok := spec.(specification.ByConversationID); ok {
			n := int64(len(r.store.messagesFor(sp.ConversationID)))
			r.store.mu.Lock()
			if r.store.staleCounts > 0 {
				r.store.staleCounts--
				n--
			}
			r.store.mu.Unlock()
			return n, nil
		}
	}
	return 0, nil
}

// --- model fake ---

type fakeProvider struct {
	generateFn func(prompt string) (string, error)
	streamFn   func() (<-chan llm.Chunk, error)
}

func (p *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return "", nil
}
func (p *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.generateFn(prompt)
}
func (p *fakeProvider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.Chunk, error) {
	return p.streamFn()
}

func streamOf(chunks ...llm.Chunk) func() (<-chan llm.Chunk, error) {
	return func() (<-chan llm.Chunk, error) {
		ch := make(chan llm.Chunk, len(chunks))
		for _, c := range chunks {
			ch <- c
		}
		close(ch)
		return ch, nil
	}
}

// --- executor over sqlmock ---

type stubDriver struct {
	db  *sql.DB
	err error
}

func (d stubDriver) Open(connString string) (*sql.DB, error) { return d.db, d.err }

func newStubExecutor(t *testing.T) (*dbexec.Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	registry := dbexec.NewRegistry()
	registry.Register(dbexec.KindPostgres, stubDriver{db: db})
	return dbexec.NewExecutor(registry, 0), mock
}

// --- fixture ---

type turnFixture struct {
	service  IConversationService
	store    *memStore
	mock     sqlmock.Sqlmock
	userId   uuid.UUID
	convId   uuid.UUID
	provider *fakeProvider
}

func newTurnFixture(t *testing.T) *turnFixture {
	t.Helper()

	userId := uuid.New()
	workspaceId := uuid.New()
	conversationId := uuid.New()

	snapshot, err := json.Marshal(map[string]interface{}{
		"users": []map[string]interface{}{
			{"columnName": "id", "dataType": "uuid", "isNullable": "NO"},
			{"columnName": "name", "dataType": "text", "isNullable": "YES"},
		},
	})
	require.NoError(t, err)

	store := &memStore{
		workspace: &entity.Workspace{
			Id:     workspaceId,
			UserId: userId,
			Name:   "analytics",
			Connection: &entity.DatabaseConnection{
				Id:               uuid.New(),
				WorkspaceId:      workspaceId,
				Kind:             entity.DatabaseKindPostgres,
				ConnectionString: "postgres://stub",
				SchemaSnapshot:   snapshot,
			},
		},
		conversations: []*entity.Conversation{{
			Id:          conversationId,
			WorkspaceId: workspaceId,
			UserId:      userId,
			Title:       "User overview",
			CreatedAt:   time.Now(),
		}},
	}

	provider := &fakeProvider{
		generateFn: func(string) (string, error) {
			return `{"query": "SELECT id, name FROM users"}`, nil
		},
		streamFn: streamOf(llm.Chunk{Content: "Here are "}, llm.Chunk{Content: "your users."}),
	}

	executor, mock := newStubExecutor(t)

	svc := NewConversationService(
		&memFactory{store: store},
		provider,
		sqlgen.NewGenerator(provider),
		executor,
		memory.NewSchemaCache(),
		nil,
		noopLogger{},
	)

	return &turnFixture{
		service:  svc,
		store:    store,
		mock:     mock,
		userId:   userId,
		convId:   conversationId,
		provider: provider,
	}
}

type noopLogger struct{}

func (noopLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopLogger) Info(module, message string, details map[string]interface{})  {}
func (noopLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopLogger) Error(module, message string, details map[string]interface{}) {}
func (noopLogger) Sync() error                                                  { return nil }

func collect(t *testing.T, events <-chan dto.StreamEvent) []dto.StreamEvent {
	t.Helper()
	var out []dto.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func eventTypes(events []dto.StreamEvent) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// --- tests ---

func TestStreamTurnHappyPath(t *testing.T) {
	f := newTurnFixture(t)

	f.mock.ExpectPing()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("1", "ada").
			AddRow("2", "grace"))

	events, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Equal(t, []string{
		dto.EventUserMessageCreated,
		dto.EventSqlGenerated,
		dto.EventQueryExecuted,
		dto.EventLLMStreamStart,
		dto.EventLLMChunk,
		dto.EventLLMChunk,
		dto.EventAssistantMessageSaved,
	}, eventTypes(got))

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 2)

	userMsg, assistantMsg := messages[0], messages[1]
	assert.Equal(t, entity.MessageRoleUser, userMsg.Role)
	assert.Equal(t, "show me all users", userMsg.Content)
	assert.Equal(t, "SELECT id, name FROM users", userMsg.SqlQuery)

	assert.Equal(t, entity.MessageRoleAssistant, assistantMsg.Role)
	assert.Equal(t, "Here are your users.", assistantMsg.Content)
	assert.Equal(t, "SELECT id, name FROM users", assistantMsg.SqlQuery)
	assert.NotEmpty(t, assistantMsg.QueryResult)
	assert.Equal(t, userMsg.Sequence+1, assistantMsg.Sequence)

	var persisted dbexec.Result
	require.NoError(t, json.Unmarshal(assistantMsg.QueryResult, &persisted))
	assert.Equal(t, 2, persisted.RowCount)
}

func TestStreamTurnGenerationFailureSkipsExecution(t *testing.T) {
	f := newTurnFixture(t)
	f.provider.generateFn = func(string) (string, error) {
		return "", errors.New("model unavailable")
	}

	events, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Equal(t, []string{
		dto.EventUserMessageCreated,
		dto.EventError,
		dto.EventAssistantMessageSaved,
	}, eventTypes(got))

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 2)
	assert.Equal(t, entity.MessageRoleUser, messages[0].Role)
	assert.Empty(t, messages[0].SqlQuery)
	assert.Equal(t, entity.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, constant.ApologyNarration, messages[1].Content)
	assert.Empty(t, messages[1].QueryResult)

	// Nothing reached the user's database.
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStreamTurnRejectsMutatingStatement(t *testing.T) {
	f := newTurnFixture(t)
	f.provider.generateFn = func(string) (string, error) {
		return `{"query": "DELETE FROM users"}`, nil
	}

	events, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "remove everyone",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Equal(t, []string{
		dto.EventUserMessageCreated,
		dto.EventError,
		dto.EventAssistantMessageSaved,
	}, eventTypes(got))

	// The statement never reached the executor.
	assert.NoError(t, f.mock.ExpectationsWereMet())

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 2)
	assert.Empty(t, messages[0].SqlQuery)
}

func TestStreamTurnExecutionFailureStillNarrates(t *testing.T) {
	f := newTurnFixture(t)
	f.provider.streamFn = streamOf(llm.Chunk{Content: "I could not read your data."})

	f.mock.ExpectPing()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnError(errors.New("relation \"users\" does not exist"))

	events, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Equal(t, []string{
		dto.EventUserMessageCreated,
		dto.EventSqlGenerated,
		dto.EventError,
		dto.EventLLMStreamStart,
		dto.EventLLMChunk,
		dto.EventAssistantMessageSaved,
	}, eventTypes(got))

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 2)
	assert.Equal(t, "SELECT id, name FROM users", messages[0].SqlQuery)
	assert.Equal(t, "I could not read your data.", messages[1].Content)

	var persisted dbexec.Result
	require.NoError(t, json.Unmarshal(messages[1].QueryResult, &persisted))
	assert.Empty(t, persisted.Rows)
}

func TestStreamTurnNarrationInterruptionKeepsPartial(t *testing.T) {
	f := newTurnFixture(t)
	f.provider.streamFn = streamOf(
		llm.Chunk{Content: "Partial answer"},
		llm.Chunk{Err: errors.New("stream reset")},
	)

	f.mock.ExpectPing()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))

	events, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Contains(t, eventTypes(got), dto.EventError)
	assert.Equal(t, dto.EventAssistantMessageSaved, got[len(got)-1].Type)

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 2)
	assert.Equal(t, "Partial answer", messages[1].Content)
}

func TestStreamTurnAssistantPersistenceFailureIsTerminal(t *testing.T) {
	f := newTurnFixture(t)
	f.store.failCreateRole = entity.MessageRoleAssistant

	f.mock.ExpectPing()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))

	events, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Equal(t, dto.EventError, got[len(got)-1].Type)
	assert.NotContains(t, eventTypes(got), dto.EventAssistantMessageSaved)

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 1)
	assert.Equal(t, entity.MessageRoleUser, messages[0].Role)
}

func TestStreamTurnEntryValidation(t *testing.T) {
	f := newTurnFixture(t)

	_, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "   ",
	})
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: uuid.New(),
		Prompt:         "show me all users",
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// A stranger cannot stream into someone else's conversation.
	_, err = f.service.StreamTurn(context.Background(), uuid.New(), &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// No partial messages were written on any rejected entry.
	assert.Empty(t, f.store.messagesFor(f.convId))
}

func TestStreamTurnClientGoneStillPersistsTurn(t *testing.T) {
	f := newTurnFixture(t)

	// A narration far longer than the event buffer, with nobody reading.
	chunks := make([]llm.Chunk, 40)
	for i := range chunks {
		chunks[i] = llm.Chunk{Content: "x"}
	}
	f.provider.streamFn = streamOf(chunks...)

	f.mock.ExpectPing()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))

	ctx, cancel := context.WithCancel(context.Background())
	events, err := f.service.StreamTurn(ctx, f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	require.NoError(t, err)

	// The client hangs up before consuming a single event.
	cancel()

	// The pipeline must wind down and close the channel on its own; if it
	// parks on an undrained event, this read times out.
	collect(t, events)

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 2)
	assert.Equal(t, entity.MessageRoleUser, messages[0].Role)
	assert.Equal(t, entity.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, messages[0].Sequence+1, messages[1].Sequence)
}

func TestStreamTurnRecoversLostSequenceRace(t *testing.T) {
	f := newTurnFixture(t)

	// Sequence 0 is already taken, and the first count is stale: the
	// insert loses the unique-index race and must recount.
	f.store.messages = append(f.store.messages, &entity.Message{
		Id:             uuid.New(),
		ConversationId: f.convId,
		UserId:         f.userId,
		Role:           entity.MessageRoleUser,
		Sequence:       0,
		Content:        "earlier turn",
		CreatedAt:      time.Now(),
	})
	f.store.staleCounts = 1

	f.mock.ExpectPing()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))

	events, err := f.service.StreamTurn(context.Background(), f.userId, &dto.SendTurnRequest{
		ConversationId: f.convId,
		Prompt:         "show me all users",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.NotContains(t, eventTypes(got), dto.EventError)

	messages := f.store.messagesFor(f.convId)
	require.Len(t, messages, 3)
	seen := map[int]bool{}
	for _, m := range messages {
		assert.False(t, seen[m.Sequence], "sequence %d minted twice", m.Sequence)
		seen[m.Sequence] = true
	}
	assert.Equal(t, 1, messages[1].Sequence)
	assert.Equal(t, 2, messages[2].Sequence)
}

func TestCreateConversationWritesTitleAndFirstMessage(t *testing.T) {
	f := newTurnFixture(t)
	f.store.conversations = nil
	f.provider.generateFn = func(string) (string, error) {
		return "\"User Overview Report\"", nil
	}

	res, err := f.service.Create(context.Background(), f.userId, &dto.CreateConversationRequest{
		WorkspaceId: f.store.workspace.Id,
		Prompt:      "show me all users",
	})
	require.NoError(t, err)
	assert.Equal(t, "User Overview Report", res.Title)

	require.Len(t, f.store.conversations, 1)
	messages := f.store.messagesFor(res.ConversationId)
	require.Len(t, messages, 1)
	assert.Equal(t, entity.MessageRoleUser, messages[0].Role)
	assert.Equal(t, 0, messages[0].Sequence)
	assert.Equal(t, "show me all users", messages[0].Content)
}

func TestCreateConversationTitleFailureWritesNothing(t *testing.T) {
	f := newTurnFixture(t)
	f.store.conversations = nil
	f.provider.generateFn = func(string) (string, error) {
		return "", errors.New("model unavailable")
	}

	_, err := f.service.Create(context.Background(), f.userId, &dto.CreateConversationRequest{
		WorkspaceId: f.store.workspace.Id,
		Prompt:      "show me all users",
	})
	require.Error(t, err)
	assert.Empty(t, f.store.conversations)
	assert.Empty(t, f.store.messages)
}
