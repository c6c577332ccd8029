package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aichat-platform/aichat/internal/auth"
	"github.com/aichat-platform/aichat/internal/history"
	"github.com/aichat-platform/aichat/internal/ledger"
	"github.com/aichat-platform/aichat/internal/llm"
)

type memHistory struct {
	mu   sync.Mutex
	msgs map[string][]history.Message
}

func newMemHistory() *memHistory {
	return &memHistory{msgs: make(map[string][]history.Message)}
}

func (m *memHistory) Append(_ context.Context, accountID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[accountID] = append(m.msgs[accountID], history.Message{
		ID: int64(len(m.msgs[accountID]) + 1), AccountID: accountID, Role: role, Content: content, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memHistory) Recent(_ context.Context, accountID string) ([]history.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Message(nil), m.msgs[accountID]...), nil
}

func (m *memHistory) List(_ context.Context, accountID string, page, pageSize int) ([]history.Message, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.msgs[accountID]
	out := make([]history.Message, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	start := (page - 1) * pageSize
	if start >= len(out) {
		return nil, int64(len(all)), nil
	}
	return out[start:min(len(out), start+pageSize)], int64(len(all)), nil
}

type fakeCompleter struct {
	mu   sync.Mutex
	err  error
	last llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = req
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: "echo: " + req.Message, Model: "test"}, nil
}

type testEnv struct {
	handler   *Handler
	store     *ledger.MemoryStore
	history   *memHistory
	completer *fakeCompleter
}

func newTestEnv(t *testing.T, burst int) *testEnv {
	t.Helper()
	store := ledger.NewMemoryStore()
	hist := newMemHistory()
	l := ledger.New(store, hist, ledger.Limits{GuestFree: 2, UserFree: 3, Window: 24 * time.Hour})
	completer := &fakeCompleter{}
	svc := NewService(l, hist, completer, NewBurstLimiter(setupMiniredis(t)), Config{
		SystemPrompt:   "You are helpful.",
		BurstPerMinute: burst,
	})
	return &testEnv{handler: NewHandler(svc), store: store, history: hist, completer: completer}
}

func postChat(t *testing.T, h *Handler, body any, claims *auth.AccessClaims) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(data))
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rr := httptest.NewRecorder()
	h.Send(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestSend_GuestUntilExhausted(t *testing.T) {
	env := newTestEnv(t, 100)
	body := map[string]string{"message": "hello", "guest_id": "guest_abc"}

	rr := postChat(t, env.handler, body, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	data := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, "echo: hello", data["message"])
	usage := data["usage"].(map[string]any)
	assert.Equal(t, float64(1), usage["free_requests_used"])
	assert.Equal(t, float64(2), usage["free_requests_limit"])

	rr = postChat(t, env.handler, body, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postChat(t, env.handler, body, nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	resp := decode(t, rr)
	assert.NotEmpty(t, resp["error"])
	details := resp["details"].(map[string]any)
	assert.Equal(t, float64(2), details["free_requests_used"])
	assert.Equal(t, float64(0), details["paid_requests_available"])

	assert.Len(t, env.history.msgs["guest:guest_abc"], 4)
}

func TestSend_UserLimitDiffersFromGuest(t *testing.T) {
	env := newTestEnv(t, 100)
	claims := &auth.AccessClaims{UserID: "6f1c3b8e-0d5a-4c57-9d1e-2b8f0c7a9e11", Role: auth.RoleUser}

	for i := 0; i < 3; i++ {
		rr := postChat(t, env.handler, map[string]string{"message": "hi"}, claims)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := postChat(t, env.handler, map[string]string{"message": "hi"}, claims)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestSend_PaidAfterFree(t *testing.T) {
	env := newTestEnv(t, 100)
	env.store.Seed(ledger.Account{Key: "guest:guest_paid", Kind: ledger.KindGuest, FreeUsed: 2, PaidAvailable: 1, FreeResetAt: time.Now().UTC()})

	rr := postChat(t, env.handler, map[string]string{"message": "hi", "guest_id": "guest_paid"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	usage := decode(t, rr)["data"].(map[string]any)["usage"].(map[string]any)
	assert.Equal(t, float64(0), usage["paid_requests_available"])
}

func TestSend_ProviderFailureKeepsQuota(t *testing.T) {
	env := newTestEnv(t, 100)
	env.completer.err = llm.ErrProviderUnavailable

	rr := postChat(t, env.handler, map[string]string{"message": "hi", "guest_id": "guest_fail"}, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	acc, err := env.store.GetAccount(context.Background(), "guest:guest_fail")
	require.NoError(t, err)
	assert.Equal(t, 0, acc.FreeUsed)
	assert.Empty(t, env.history.msgs["guest:guest_fail"])
}

func TestSend_PassesContext(t *testing.T) {
	env := newTestEnv(t, 100)
	body := map[string]string{"message": "first", "guest_id": "guest_ctx"}
	require.Equal(t, http.StatusOK, postChat(t, env.handler, body, nil).Code)

	body["message"] = "second"
	require.Equal(t, http.StatusOK, postChat(t, env.handler, body, nil).Code)

	last := env.completer.last
	assert.Equal(t, "You are helpful.", last.SystemPrompt)
	assert.Equal(t, "second", last.Message)
	require.Len(t, last.History, 2)
	assert.Equal(t, "first", last.History[0].Content)
	assert.Equal(t, "echo: first", last.History[1].Content)
}

func TestSend_Validation(t *testing.T) {
	env := newTestEnv(t, 100)

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"empty message", map[string]string{"message": "   ", "guest_id": "guest_v"}, http.StatusBadRequest},
		{"too long", map[string]string{"message": string(bytes.Repeat([]byte("a"), 4001)), "guest_id": "guest_v"}, http.StatusBadRequest},
		{"no identity", map[string]string{"message": "hi"}, http.StatusUnauthorized},
		{"bad guest id", map[string]string{"message": "hi", "guest_id": "visitor1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postChat(t, env.handler, tt.body, nil)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestSend_BurstLimited(t *testing.T) {
	env := newTestEnv(t, 1)
	body := map[string]string{"message": "hi", "guest_id": "guest_burst"}

	require.Equal(t, http.StatusOK, postChat(t, env.handler, body, nil).Code)

	rr := postChat(t, env.handler, body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	acc, err := env.store.GetAccount(context.Background(), "guest:guest_burst")
	require.NoError(t, err)
	assert.Equal(t, 1, acc.FreeUsed, "burst rejection does not reach the ledger")
}

func TestHistoryAndQuota(t *testing.T) {
	env := newTestEnv(t, 100)
	require.Equal(t, http.StatusOK, postChat(t, env.handler, map[string]string{"message": "hi", "guest_id": "guest_h"}, nil).Code)

	rr := httptest.NewRecorder()
	env.handler.History(rr, httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?guest_id=guest_h&page_size=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, float64(2), resp["total_count"])
	msgs := resp["data"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "assistant", msgs[0].(map[string]any)["role"])

	rr = httptest.NewRecorder()
	env.handler.Quota(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quota?guest_id=guest_h", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	usage := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, float64(1), usage["free_requests_used"])
	assert.Equal(t, float64(1), usage["free_requests_remaining"])
}
