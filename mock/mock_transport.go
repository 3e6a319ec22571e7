// Package mock provides a scripted Transport for tests and local
// development. The handler decides each response; the transport records
// every request it saw and counts exchanges, including per-URL, so tests can
// assert exact call budgets under concurrency.
package mock

import (
	"strings"
	"sync"

	resilientclient "github.com/stridetrack/resilient-client"
)

// Handler produces the response for one exchange.
type Handler func(req *resilientclient.WireRequest) (*resilientclient.WireResponse, error)

type Transport struct {
	mu       sync.Mutex
	handler  Handler
	requests []resilientclient.WireRequest
}

func NewTransport(handler Handler) *Transport {
	return &Transport{handler: handler}
}

func (m *Transport) Exchange(req *resilientclient.WireRequest) (*resilientclient.WireResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	handler := m.handler
	m.mu.Unlock()
	return handler(req)
}

// Calls returns the total number of exchanges performed.
func (m *Transport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// CallsTo counts exchanges whose URL contains substr.
func (m *Transport) CallsTo(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if strings.Contains(r.URL, substr) {
			n++
		}
	}
	return n
}

// Requests returns a copy of every request seen, in order.
func (m *Transport) Requests() []resilientclient.WireRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]resilientclient.WireRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// JSONResponse builds a JSON-typed response.
func JSONResponse(status int, body string) *resilientclient.WireResponse {
	return &resilientclient.WireResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}
}

// TextResponse builds a plain-text response.
func TextResponse(status int, body string) *resilientclient.WireResponse {
	return &resilientclient.WireResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       []byte(body),
	}
}
