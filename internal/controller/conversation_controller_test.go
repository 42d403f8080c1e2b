package controller

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/dto"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/service"
)

type stubConversationService struct {
	events    []dto.StreamEvent
	streamErr error

	gotCtx context.Context
}

func (s *stubConversationService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateConversationRequest) (*dto.CreateConversationResponse, error) {
	return nil, nil
}
func (s *stubConversationService) FindAll(ctx context.Context, userId, workspaceId uuid.UUID) ([]*dto.ConversationListResponse, error) {
	return nil, nil
}
func (s *stubConversationService) GetMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.MessageResponse, error) {
	return nil, nil
}
func (s *stubConversationService) Delete(ctx context.Context, userId, conversationId uuid.UUID) error {
	return nil
}
func (s *stubConversationService) StreamTurn(ctx context.Context, userId uuid.UUID, req *dto.SendTurnRequest) (<-chan dto.StreamEvent, error) {
	s.gotCtx = ctx
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	out := make(chan dto.StreamEvent, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}
	close(out)
	return out, nil
}

func newStreamApp(stub *stubConversationService) *fiber.App {
	app := fiber.New()
	ctrl := &conversationController{service: stub, logger: noopControllerLogger{}}
	// JWT is exercised elsewhere; route the handler directly.
	app.Post("/conversations/stream", ctrl.Stream)
	return app
}

type noopControllerLogger struct{}

func (noopControllerLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopControllerLogger) Info(module, message string, details map[string]interface{})  {}
func (noopControllerLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopControllerLogger) Error(module, message string, details map[string]interface{}) {}
func (noopControllerLogger) Sync() error                                                  { return nil }

func streamRequest(t *testing.T) *http.Request {
	t.Helper()
	body := `{"conversation_id":"` + uuid.New().String() + `","prompt":"show me all users"}`
	req := httptest.NewRequest(http.MethodPost, "/conversations/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStreamWritesServerSentEventFrames(t *testing.T) {
	stub := &stubConversationService{events: []dto.StreamEvent{
		{Type: dto.EventUserMessageCreated, Data: dto.UserMessageCreatedData{MessageId: 0, Id: uuid.New()}},
		{Type: dto.EventSqlGenerated, Data: dto.SqlGeneratedData{Query: "SELECT 1"}},
		{Type: dto.EventAssistantMessageSaved},
	}}
	app := newStreamApp(stub)

	res, err := app.Test(streamRequest(t), 5000)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	frames := strings.Split(strings.TrimSuffix(string(body), "\n\n"), "\n\n")
	require.Len(t, frames, 3)
	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: "), "frame %q lacks SSE prefix", frame)
	}
	assert.Contains(t, frames[1], `"sql_generated"`)

	// The pipeline context is detached from the pooled request context and
	// canceled once the stream writer finishes.
	require.NotNil(t, stub.gotCtx)
	select {
	case <-stub.gotCtx.Done():
	default:
		t.Fatal("pipeline context not canceled after stream completion")
	}
}

func TestStreamRejectsInvalidEntry(t *testing.T) {
	stub := &stubConversationService{streamErr: service.ErrConversationNotFound}
	app := newStreamApp(stub)

	res, err := app.Test(streamRequest(t), 2000)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// Entry rejection cancels the pipeline context immediately.
	select {
	case <-stub.gotCtx.Done():
	default:
		t.Fatal("pipeline context not canceled after rejected entry")
	}
}
