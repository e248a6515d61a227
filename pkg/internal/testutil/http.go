package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// MockHTTPDoer implements github.HTTPDoer for testing.
// Responses are keyed by method and URL; unknown requests get a 404.
type MockHTTPDoer struct {
	responses map[string]cannedResponse
	errors    map[string]error
	calls     []HTTPCall
	mu        sync.Mutex
}

type cannedResponse struct {
	body   []byte
	status int
}

// HTTPCall records a single HTTP call.
type HTTPCall struct {
	Header http.Header
	Method string
	URL    string
	Body   []byte
}

// NewMockHTTPDoer creates a new MockHTTPDoer.
func NewMockHTTPDoer() *MockHTTPDoer {
	return &MockHTTPDoer{
		responses: make(map[string]cannedResponse),
		errors:    make(map[string]error),
	}
}

// Do records the request and returns the configured response.
// Each call gets a fresh body, so a response can be served repeatedly.
func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, HTTPCall{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})

	key := req.Method + ":" + req.URL.String()
	if err, ok := m.errors[key]; ok {
		return nil, err
	}

	canned, ok := m.responses[key]
	if !ok {
		canned = cannedResponse{status: http.StatusNotFound, body: []byte(`{"message":"not found"}`)}
	}
	return &http.Response{
		StatusCode: canned.status,
		Status:     fmt.Sprintf("%d %s", canned.status, http.StatusText(canned.status)),
		Body:       io.NopCloser(bytes.NewReader(canned.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// SetResponse configures a JSON response for a method and URL.
func (m *MockHTTPDoer) SetResponse(method, url string, statusCode int, body any) {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			panic(fmt.Sprintf("failed to marshal response body: %v", err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method+":"+url] = cannedResponse{status: statusCode, body: raw}
}

// SetError configures a transport error for a method and URL.
func (m *MockHTTPDoer) SetError(method, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method+":"+url] = err
}

// Calls returns all recorded HTTP calls.
func (m *MockHTTPDoer) Calls() []HTTPCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]HTTPCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}
