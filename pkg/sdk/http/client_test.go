package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/betbot/tradeweb/pkg/sdk/apierr"
	"github.com/betbot/tradeweb/pkg/session"
)

// countingStore 记录 Clear 调用次数
type countingStore struct {
	session.MemoryStore
	mu     sync.Mutex
	clears int
}

func (s *countingStore) Clear() error {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
	return s.MemoryStore.Clear()
}

func (s *countingStore) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func errorsAs(err error, target any) bool {
	return errors.As(err, target)
}

type seenRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	RequestID     string
	Body          string
}

type ClientTestSuite struct {
	suite.Suite
	server  *httptest.Server
	store   *countingStore
	client  *Client
	handler http.HandlerFunc

	mu   sync.Mutex
	seen []seenRequest
	hits atomic.Int32
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.seen = nil
	s.hits.Store(0)
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.seen = append(s.seen, seenRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			RequestID:     r.Header.Get(HeaderRequestID),
			Body:          string(body),
		})
		s.mu.Unlock()
		s.handler(w, r)
	}))
	s.store = &countingStore{}
	s.client = NewClient(s.server.URL+"/", s.store)
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientTestSuite) lastSeen() seenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Require().NotEmpty(s.seen)
	return s.seen[len(s.seen)-1]
}

func (s *ClientTestSuite) TestAttachesBearerWhenAuthRequired() {
	s.Require().NoError(s.store.Set("tok-1"))

	var out map[string]any
	s.Require().NoError(s.client.Request(context.Background(), http.MethodGet, "/symbols", nil, true, &out))

	seen := s.lastSeen()
	s.Equal("Bearer tok-1", seen.Authorization)
	s.Equal("application/json", seen.ContentType)
	s.NotEmpty(seen.RequestID)
	s.Equal(true, out["ok"])
}

func (s *ClientTestSuite) TestNoBearerWhenNotRequired() {
	s.Require().NoError(s.store.Set("tok-1"))

	s.Require().NoError(s.client.Request(context.Background(), http.MethodPost, "/auth/login",
		map[string]string{"username": "alice"}, false, nil))

	seen := s.lastSeen()
	s.Empty(seen.Authorization)
	s.JSONEq(`{"username":"alice"}`, seen.Body)
}

func (s *ClientTestSuite) TestAnonymousAuthRequest() {
	s.Require().NoError(s.client.Request(context.Background(), http.MethodGet, "/symbols", nil, true, nil))
	s.Empty(s.lastSeen().Authorization)
}

func (s *ClientTestSuite) TestUnauthorizedClearsTokenOnce() {
	endpoints := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/symbols", nil},
		{http.MethodGet, "/orders/me", nil},
		{http.MethodDelete, "/orders/cancel/3", nil},
		{http.MethodPost, "/orders/new", map[string]any{"symbol_id": 1}},
	}
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid token"}`))
	}

	for i, ep := range endpoints {
		s.Run(ep.method+" "+ep.path, func() {
			s.Require().NoError(s.store.Set("stale"))

			err := s.client.Request(context.Background(), ep.method, ep.path, ep.body, true, nil)
			s.Require().Error(err)
			s.True(apierr.IsSessionExpired(err))

			var reqErr *apierr.RequestError
			s.False(errorsAs(err, &reqErr), "401 不应该表现为普通请求错误")

			_, ok := s.store.Get()
			s.False(ok, "401 后 token 必须被清除")
			s.Equal(i+1, s.store.clearCount(), "每个 401 只清除一次")
		})
	}
}

func (s *ClientTestSuite) TestUnauthorizedOnPublicEndpoint() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
	}
	s.Require().NoError(s.store.Set("keep"))

	err := s.client.Request(context.Background(), http.MethodPost, "/auth/login", map[string]string{"username": "bob"}, false, nil)
	s.False(apierr.IsSessionExpired(err))
	reqErr, ok := apierr.AsRequestError(err)
	s.Require().True(ok)
	s.Equal("Invalid credentials", reqErr.Error())
	s.Equal(http.StatusUnauthorized, reqErr.Status)

	token, ok := s.store.Get()
	s.True(ok)
	s.Equal("keep", token)
	s.Equal(0, s.store.clearCount())
}

func (s *ClientTestSuite) TestStaleTokenNotReusedAfter401() {
	calls := 0
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}
	s.Require().NoError(s.store.Set("stale"))

	err := s.client.Request(context.Background(), http.MethodGet, "/orders/me", nil, true, nil)
	s.True(apierr.IsSessionExpired(err))

	var out []any
	s.Require().NoError(s.client.Request(context.Background(), http.MethodGet, "/orders/me", nil, true, &out))
	s.Empty(s.lastSeen().Authorization)
}

func (s *ClientTestSuite) TestErrorDetail() {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", http.StatusBadRequest, `{"detail":"X"}`, "X"},
		{"not found", http.StatusNotFound, `{"detail":"Order not found"}`, "Order not found"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","price"],"msg":"field required"}]}`, "field required"},
		{"no detail", http.StatusInternalServerError, `{"error":"boom"}`, apierr.ReasonRequestFailed},
		{"null detail", http.StatusBadRequest, `{"detail":null}`, apierr.ReasonRequestFailed},
		{"unparsable", http.StatusBadGateway, `<html>bad gateway</html>`, apierr.ReasonRequestFailed},
		{"empty", http.StatusServiceUnavailable, ``, apierr.ReasonRequestFailed},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}
			err := s.client.Request(context.Background(), http.MethodGet, "/symbols", nil, true, nil)
			reqErr, ok := apierr.AsRequestError(err)
			s.Require().True(ok, "应该返回 RequestError: %v", err)
			s.Equal(tt.want, reqErr.Error())
			s.Equal(tt.status, reqErr.Status)
			s.False(reqErr.IsTransport())
		})
	}
}

func (s *ClientTestSuite) TestDecodeError() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}
	var out map[string]any
	err := s.client.Request(context.Background(), http.MethodGet, "/symbols", nil, true, &out)

	var decErr *apierr.DecodeError
	s.Require().True(errorsAs(err, &decErr), "应该返回 DecodeError: %v", err)
	s.Equal("/symbols", decErr.Path)

	// out 为 nil 时同样校验 JSON
	err = s.client.Request(context.Background(), http.MethodGet, "/symbols", nil, true, nil)
	s.True(errorsAs(err, &decErr))
}

func (s *ClientTestSuite) TestEmptyBodyWithoutOut() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	s.NoError(s.client.Request(context.Background(), http.MethodDelete, "/orders/cancel/1", nil, true, nil))
}

func (s *ClientTestSuite) TestPostIsNotRetried() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	err := s.client.Request(context.Background(), http.MethodPost, "/orders/new", map[string]int{"quantity": 1}, true, nil)
	s.Error(err)
	s.Equal(int32(1), s.hits.Load())
}

func (s *ClientTestSuite) TestRejectsInvalidRequests() {
	err := s.client.Request(context.Background(), http.MethodPut, "/orders/1", nil, true, nil)
	s.Error(err)

	err = s.client.Request(context.Background(), http.MethodGet, "/symbols", map[string]int{"a": 1}, true, nil)
	s.Error(err)

	err = s.client.Request(context.Background(), http.MethodPost, "/orders/new", func() {}, true, nil)
	s.Error(err)

	s.Equal(int32(0), s.hits.Load(), "非法请求不应该到达网络")
}

func (s *ClientTestSuite) TestNetworkError() {
	url := s.server.URL
	s.server.Close()

	client := NewClient(url, s.store)
	err := client.Request(context.Background(), http.MethodGet, "/symbols", nil, true, nil)
	reqErr, ok := apierr.AsRequestError(err)
	s.Require().True(ok)
	s.True(reqErr.IsTransport())
	s.Contains(reqErr.Error(), "Network error")

	// 让 TearDownTest 可以再次 Close
	s.server = httptest.NewServer(http.NotFoundHandler())
}

func (s *ClientTestSuite) TestContextCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.client.Request(ctx, http.MethodGet, "/symbols", nil, true, nil)
	reqErr, ok := apierr.AsRequestError(err)
	s.Require().True(ok)
	s.True(reqErr.IsTransport())
}

func (s *ClientTestSuite) TestDecodesIntoStruct() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1, "name": "Stock1", "ticker": "stk1"}})
	}
	var out []struct {
		ID     int    `json:"id"`
		Ticker string `json:"ticker"`
	}
	s.Require().NoError(s.client.Request(context.Background(), http.MethodGet, "/symbols", nil, true, &out))
	s.Require().Len(out, 1)
	s.Equal("stk1", out[0].Ticker)
}

func TestParseErrorReason(t *testing.T) {
	if got := ParseErrorReason([]byte(`{"detail":"Symbol not found"}`)); got != "Symbol not found" {
		t.Errorf("期望 Symbol not found，得到 %s", got)
	}
	if got := ParseErrorReason(nil); got != apierr.ReasonRequestFailed {
		t.Errorf("期望通用原因，得到 %s", got)
	}
}
