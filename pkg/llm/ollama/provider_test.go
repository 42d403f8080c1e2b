package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarshilChauhan1/sql-query-builder-llm/pkg/llm"
)

func TestChatStreamDeliversFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"Hello"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":" world"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	}))
	defer srv.Close()

	provider := NewOllamaProvider(srv.URL, "llama3")

	chunks, err := provider.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	var got string
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		got += chunk.Content
	}
	assert.Equal(t, "Hello world", got)
}

func TestChatStreamAbandonedReceiverReleasesConnection(t *testing.T) {
	handlerDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(handlerDone)
		fl := w.(http.Flusher)
		fmt.Fprintln(w, `{"message":{"content":"one"},"done":false}`)
		fl.Flush()
		fmt.Fprintln(w, `{"message":{"content":"two"},"done":false}`)
		fl.Flush()
		// Hold the stream open until the client hangs up.
		<-r.Context().Done()
	}))
	defer srv.Close()

	provider := NewOllamaProvider(srv.URL, "llama3")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunks, err := provider.ChatStream(ctx, []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	first := <-chunks
	require.NoError(t, first.Err)
	assert.Equal(t, "one", first.Content)

	// Stop reading entirely, then cancel. The stream goroutine must shut
	// down and release the response body with no receiver draining it.
	cancel()

	select {
	case <-handlerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("stream goroutine still holds the connection after cancel")
	}
}
