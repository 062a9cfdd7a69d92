// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/phantomctl/internal/webdriver"
)

// -- Transport Mock --

// MockTransport mocks webdriver.Transport.
type MockTransport struct {
	mock.Mock
}

// Create implements webdriver.Transport.
func (m *MockTransport) Create(ctx context.Context, path string, body interface{}) (*webdriver.CommandResult, error) {
	args := m.Called(ctx, path, body)
	var result *webdriver.CommandResult
	if r := args.Get(0); r != nil {
		result = r.(*webdriver.CommandResult)
	}
	return result, args.Error(1)
}

// -- Recording Transport --

// Call is one command seen by a RecordingTransport.
type Call struct {
	Path string
	Body interface{}
}

// RecordingTransport records every command and answers from a per path
// table. Paths without an entry succeed with a null value.
type RecordingTransport struct {
	mu      sync.Mutex
	calls   []Call
	Replies map[string]Reply
}

// Reply is a canned answer for one path.
type Reply struct {
	Result *webdriver.CommandResult
	Err    error
}

// NewRecordingTransport creates a RecordingTransport with no canned replies.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{Replies: make(map[string]Reply)}
}

// Create implements webdriver.Transport.
func (r *RecordingTransport) Create(_ context.Context, path string, body interface{}) (*webdriver.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Path: path, Body: body})
	if reply, ok := r.Replies[path]; ok {
		return reply.Result, reply.Err
	}
	return &webdriver.CommandResult{Value: json.RawMessage("null")}, nil
}

// Calls returns a copy of the recorded commands in order.
func (r *RecordingTransport) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
