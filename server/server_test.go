package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/engine"
	"github.com/solus-ai/solus/server"
)

type chatFunc func(ctx context.Context, input *engine.Input) (*engine.Output, error)

func (f chatFunc) Run(ctx context.Context, input *engine.Input) (*engine.Output, error) {
	return f(ctx, input)
}

type fakeMemory struct {
	mu      sync.Mutex
	count   int
	dim     int
	saves   int
	saveErr error
}

func (m *fakeMemory) Count() int     { return m.count }
func (m *fakeMemory) Dimension() int { return m.dim }
func (m *fakeMemory) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return m.saveErr
}

type fakeModel struct{ loaded bool }

func (m fakeModel) Loaded() bool { return m.loaded }

func echo(ctx context.Context, input *engine.Input) (*engine.Output, error) {
	return &engine.Output{
		Response:       "echo: " + input.Message,
		ConversationID: input.TenantID + "_1",
	}, nil
}

func newServer(chat server.Chatter, mem *fakeMemory) *server.Server {
	if mem == nil {
		mem = &fakeMemory{count: 3, dim: 384}
	}
	return server.New(chat, mem, fakeModel{loaded: true})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestChat_OK(t *testing.T) {
	var got *engine.Input
	s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
		got = input
		return echo(ctx, input)
	}), nil)

	rec := do(t, s, http.MethodPost, "/chat", `{"text":"hello","user_id":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, "echo: hello", body["response"])
	assert.Equal(t, "alice_1", body["conversation_id"])
	assert.Contains(t, body, "action")
	assert.Nil(t, body["action"])

	require.NotNil(t, got)
	assert.Equal(t, "alice", got.TenantID)
	assert.Equal(t, "hello", got.Message)
}

func TestChat_ActionPassedThrough(t *testing.T) {
	raw := json.RawMessage(`{"type":"call_make","params":{"phone_number":"555"}}`)
	s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
		return &engine.Output{Action: core.ParseAction(raw), Response: "Calling.", ConversationID: "c"}, nil
	}), nil)

	rec := do(t, s, http.MethodPost, "/chat", `{"text":"call 555","user_id":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Action   json.RawMessage `json:"action"`
		Response string          `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, string(raw), string(body.Action))
	assert.Equal(t, "Calling.", body.Response)
}

func TestChat_ConversationIDForwarded(t *testing.T) {
	var got *engine.Input
	s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
		got = input
		return echo(ctx, input)
	}), nil)

	rec := do(t, s, http.MethodPost, "/chat", `{"text":"hi","user_id":"alice","conversation_id":"conv-9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "conv-9", got.ConversationID)
}

func TestChat_Malformed(t *testing.T) {
	called := false
	s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
		called = true
		return echo(ctx, input)
	}), nil)

	for name, body := range map[string]string{
		"not json":        `{"text":`,
		"missing text":    `{"user_id":"alice"}`,
		"missing user_id": `{"text":"hi"}`,
		"array":           `["hi"]`,
		"wrong type":      `{"text":5,"user_id":"alice"}`,
		"trailing data":   `{"text":"a","user_id":"u"}garbage`,
		"two objects":     `{"text":"a","user_id":"u"}{"text":"b","user_id":"u"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/chat", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid JSON format", decode(t, rec)["error"])
		})
	}
	assert.False(t, called)
}

func TestChat_BodyTooLarge(t *testing.T) {
	called := false
	s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
		called = true
		return echo(ctx, input)
	}), nil)

	body := `{"text":"` + strings.Repeat("a", server.MaxBodyBytes) + `","user_id":"alice"}`
	rec := do(t, s, http.MethodPost, "/chat", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid request", fmt.Errorf("%w: user_id is required", core.ErrInvalidRequest), http.StatusBadRequest},
		{"embedding", fmt.Errorf("%w: connection refused", core.ErrEmbedding), http.StatusInternalServerError},
		{"generation", fmt.Errorf("%w: boom", core.ErrGeneration), http.StatusInternalServerError},
		{"prompt too long", fmt.Errorf("%w: %w", core.ErrGeneration, core.ErrPromptTooLong), http.StatusInternalServerError},
		{"unknown", errors.New("something else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
				return nil, tt.err
			}), nil)

			rec := do(t, s, http.MethodPost, "/chat", `{"text":"hi","user_id":"alice"}`)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.err.Error(), decode(t, rec)["error"])
		})
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	s := newServer(chatFunc(echo), nil)
	rec := do(t, s, http.MethodGet, "/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(chatFunc(echo), &fakeMemory{count: 7, dim: 384})

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","model_loaded":true,"memory_count":7,"embedding_dim":384}`, rec.Body.String())
}

func TestMemoryClear_NotImplemented(t *testing.T) {
	mem := &fakeMemory{count: 4}
	s := newServer(chatFunc(echo), mem)

	rec := do(t, s, http.MethodPost, "/memory/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Memory clearing not implemented yet","message":"Feature coming soon"}`, rec.Body.String())
	assert.Equal(t, 4, mem.Count())
}

func TestMemorySave(t *testing.T) {
	mem := &fakeMemory{count: 2}
	s := newServer(chatFunc(echo), mem)

	rec := do(t, s, http.MethodPost, "/memory/save", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"saved","memory_count":2}`, rec.Body.String())
	assert.Equal(t, 1, mem.saves)

	mem.saveErr = errors.New("disk full")
	rec = do(t, s, http.MethodPost, "/memory/save", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "disk full", decode(t, rec)["error"])
}

func TestActions(t *testing.T) {
	s := newServer(chatFunc(echo), nil)

	rec := do(t, s, http.MethodGet, "/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Actions []struct {
			Type string `json:"type"`
		} `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Actions, 6)
}

func TestRequestID(t *testing.T) {
	s := newServer(chatFunc(echo), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(server.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(server.RequestIDHeader))

	rec = do(t, s, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get(server.RequestIDHeader))
}

func TestRecoverer(t *testing.T) {
	s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
		panic("boom")
	}), nil)

	rec := do(t, s, http.MethodPost, "/chat", `{"text":"hi","user_id":"alice"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

func TestWebSocket(t *testing.T) {
	s := newServer(chatFunc(func(ctx context.Context, input *engine.Input) (*engine.Output, error) {
		if input.TenantID == "" {
			return nil, fmt.Errorf("%w: user_id is required", core.ErrInvalidRequest)
		}
		return echo(ctx, input)
	}), nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var reply server.WSMessage

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"one","user_id":"alice"}`)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "response", reply.Type)
	assert.Equal(t, "echo: one", reply.Response)
	assert.Equal(t, "alice_1", reply.ConversationID)

	reply = server.WSMessage{}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "Invalid JSON format", reply.Error)

	reply = server.WSMessage{}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"two","user_id":""}`)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Error, "user_id is required")

	reply = server.WSMessage{}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"three","user_id":"bob"}`)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "echo: three", reply.Response)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	s := server.New(chatFunc(echo), &fakeMemory{}, fakeModel{loaded: true},
		server.WithConfig(server.Config{Addr: addr, ShutdownTimeout: time.Second}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Post("http://"+addr+"/chat", "application/json", bytes.NewBufferString(`{"text":"hi","user_id":"a"}`))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

type toggleModel struct {
	mu     sync.Mutex
	loaded bool
}

func (m *toggleModel) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *toggleModel) set(v bool) {
	m.mu.Lock()
	m.loaded = v
	m.mu.Unlock()
}

func TestHealthServer(t *testing.T) {
	model := &toggleModel{}
	h := server.NewHealthServer(model, nil)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, lis, time.Hour) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) *healthpb.HealthCheckResponse {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check("").GetStatus())

	model.set(true)
	h.Refresh()
	want := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	assert.True(t, proto.Equal(want, check("")))
	assert.True(t, proto.Equal(want, check(server.ChatService)))

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("grpc server did not stop")
	}
}
