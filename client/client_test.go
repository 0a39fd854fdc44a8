package client

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type transportResult struct {
	status  int
	body    string
	headers map[string]string
	err     error
}

type sequenceTransport struct {
	t        *testing.T
	results  []transportResult
	calls    int
	requests []*http.Request
}

func (s *sequenceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	s.requests = append(s.requests, req)
	i := s.calls - 1
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	r := s.results[i]
	if r.err != nil {
		return nil, r.err
	}

	h := make(http.Header)
	for k, v := range r.headers {
		h.Set(k, v)
	}

	return &http.Response{
		StatusCode: r.status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

func newTestClient(t *testing.T, token string, tr http.RoundTripper) *Client {
	t.Helper()
	c := New("https://api.test.local", token)
	c.HTTPClient = &http.Client{Transport: tr}
	c.sleep = func(time.Duration) {}
	c.randInt63n = func(n int64) int64 { return 0 }
	return c
}

func TestRequest_AttachesBearerWhenTokenHeld(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{{status: 200, body: `{}`}}}
	c := newTestClient(t, "tok-abc", tr)

	if _, err := c.Request("GET", "/api/auth/me", nil); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got := tr.requests[0].Header.Get("Authorization"); got != "Bearer tok-abc" {
		t.Fatalf("Authorization = %q, want %q", got, "Bearer tok-abc")
	}
}

func TestRequest_NoAuthorizationHeaderWithoutToken(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{{status: 200, body: `{}`}}}
	c := newTestClient(t, "", tr)

	if _, err := c.Request("POST", "/api/auth/cli/init", nil); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got := tr.requests[0].Header.Get("Authorization"); got != "" {
		t.Fatalf("unexpected Authorization header %q on unauthenticated call", got)
	}
}

func TestRequest_UnauthorizedIsSentinel(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{{status: 401, body: `{"error":{"message":"no session"}}`}}}
	c := newTestClient(t, "stale-tok", tr)

	_, err := c.Request("GET", "/api/auth/me", nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if tr.calls != 1 {
		t.Fatalf("401 must not be retried, got %d attempts", tr.calls)
	}
}

func TestRequest_ServerErrorIsAPIError(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{
		{status: 400, body: `{"error":{"code":"bad_request","message":"missing field"}}`},
	}}
	c := newTestClient(t, "tok", tr)

	_, err := c.Request("POST", "/api/keys/generate", map[string]string{"name": "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Code != "bad_request" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestRequest_NetworkErrorIsWrapped(t *testing.T) {
	connRefused := errors.New("dial tcp: connection refused")
	tr := &sequenceTransport{t: t, results: []transportResult{{err: connRefused}}}
	c := newTestClient(t, "", tr)

	_, err := c.Request("GET", "/api/auth/cli/status?requestId=r1", nil)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected network error, got %v", err)
	}
	if tr.calls != 1 {
		t.Fatalf("connection refused is not retryable, got %d attempts", tr.calls)
	}
}

func TestDoWithRetry_RetriesTransientStatusThenSuccess(t *testing.T) {
	tr := &sequenceTransport{
		t: t,
		results: []transportResult{
			{status: http.StatusServiceUnavailable, body: "busy"},
			{status: http.StatusBadGateway, body: "gateway"},
			{status: http.StatusOK, body: `{"ok":true}`},
		},
	}
	c := newTestClient(t, "tok", tr)

	body, err := c.Request("GET", "/api/auth/me", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if tr.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", tr.calls)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestDoWithRetry_ExhaustsAttemptsOnPersistentFailure(t *testing.T) {
	tr := &sequenceTransport{
		t:       t,
		results: []transportResult{{status: http.StatusServiceUnavailable, body: "busy"}},
	}
	c := newTestClient(t, "tok", tr)

	_, err := c.Request("GET", "/api/auth/me", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError after exhausting retries, got %v", err)
	}
	if tr.calls != defaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultMaxAttempts, tr.calls)
	}
}

func TestInitLogin_ParsesResponse(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{
		{status: 200, body: `{"requestId":"req-9","url":"https://edpear.com/cli-auth/req-9"}`},
	}}
	c := newTestClient(t, "", tr)

	resp, err := c.InitLogin()
	if err != nil {
		t.Fatalf("InitLogin: %v", err)
	}
	if resp.RequestID != "req-9" || resp.URL != "https://edpear.com/cli-auth/req-9" {
		t.Fatalf("unexpected init response: %+v", resp)
	}
	if got := tr.requests[0].Method; got != "POST" {
		t.Fatalf("init must POST, got %s", got)
	}
}

func TestInitLogin_RejectsIncompleteResponse(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{{status: 200, body: `{"requestId":"req-9"}`}}}
	c := newTestClient(t, "", tr)

	if _, err := c.InitLogin(); err == nil {
		t.Fatal("expected error for init response without url")
	}
}

func TestLoginStatus_EscapesRequestID(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{{status: 200, body: `{"status":"pending"}`}}}
	c := newTestClient(t, "", tr)

	resp, err := c.LoginStatus("req 9&x=1")
	if err != nil {
		t.Fatalf("LoginStatus: %v", err)
	}
	if resp.Status != StatusPending {
		t.Fatalf("status = %q, want pending", resp.Status)
	}
	q := tr.requests[0].URL.Query()
	if got := q.Get("requestId"); got != "req 9&x=1" {
		t.Fatalf("requestId round-trip = %q", got)
	}
}

func TestLoginStatus_CompletedCarriesTokenAndUser(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{
		{status: 200, body: `{"status":"completed","cliToken":"tok-77","user":{"id":"u1","name":"Ada","email":"ada@example.com","credits":10}}`},
	}}
	c := newTestClient(t, "", tr)

	resp, err := c.LoginStatus("req-1")
	if err != nil {
		t.Fatalf("LoginStatus: %v", err)
	}
	if resp.Status != StatusCompleted || resp.CLIToken != "tok-77" {
		t.Fatalf("unexpected completed response: %+v", resp)
	}
	if resp.User == nil || resp.User.Email != "ada@example.com" {
		t.Fatalf("user not parsed: %+v", resp.User)
	}
}

func TestGenerateKey_SendsNameAndParsesKey(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{
		{status: 200, body: `{"apiKey":{"id":"k1","key":"ek_live_abc","name":"ci","createdAt":"2026-03-04T05:06:07Z"}}`},
	}}
	c := newTestClient(t, "tok", tr)

	key, err := c.GenerateKey("ci")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if key.Key != "ek_live_abc" || key.Name != "ci" {
		t.Fatalf("unexpected key: %+v", key)
	}
	req := tr.requests[0]
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"name":"ci"}` {
		t.Fatalf("request body = %q", body)
	}
}

func TestGenerateKey_RejectsEmptyKeyMaterial(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{{status: 200, body: `{"apiKey":{"id":"k1"}}`}}}
	c := newTestClient(t, "tok", tr)

	if _, err := c.GenerateKey(""); err == nil {
		t.Fatal("expected error when server returns no key material")
	}
}

func TestListKeys_ParsesInOrder(t *testing.T) {
	tr := &sequenceTransport{t: t, results: []transportResult{
		{status: 200, body: `{"apiKeys":[{"id":"k1","key":"ek_a"},{"id":"k2","key":"ek_b"}]}`},
	}}
	c := newTestClient(t, "tok", tr)

	keys, err := c.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 || keys[0].ID != "k1" || keys[1].ID != "k2" {
		t.Fatalf("unexpected keys: %+v", keys)
	}
}
