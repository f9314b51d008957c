// Package testutil provides shared test utilities and mocks for wide.py
// tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/WINOT/wide.py/internal/domain/ports"
)

// PushRecord is one fire-and-forget message captured by MockChannel.
type PushRecord struct {
	Op      string
	Payload json.RawMessage
}

// MockChannel implements ports.Channel for testing. Requests are answered
// from scripted responses keyed by opcode; pushes are recorded.
type MockChannel struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	reqErr    map[string]error
	requests  []string
	pushes    []PushRecord
	pushErr   error
	closed    bool
}

// NewMockChannel creates a mock channel with no scripted responses.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		responses: make(map[string]json.RawMessage),
		reqErr:    make(map[string]error),
	}
}

// Respond scripts the response payload for an opcode. The payload is
// marshaled once, at scripting time.
func (m *MockChannel) Respond(op string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[op] = data
}

// FailRequest scripts an error for requests with the given opcode.
func (m *MockChannel) FailRequest(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqErr[op] = err
}

// SetPushError configures the error returned by every subsequent Push.
func (m *MockChannel) SetPushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushErr = err
}

// Request returns the scripted response for op.
func (m *MockChannel) Request(_ context.Context, op string, _ interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, op)
	if err, ok := m.reqErr[op]; ok {
		return nil, err
	}
	return m.responses[op], nil
}

// Push records the message.
func (m *MockChannel) Push(op string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	m.pushes = append(m.pushes, PushRecord{Op: op, Payload: data})
	return nil
}

// Close marks the channel as closed.
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Requests returns the opcodes of all requests made so far.
func (m *MockChannel) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// Pushes returns all recorded pushes.
func (m *MockChannel) Pushes() []PushRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushRecord, len(m.pushes))
	copy(out, m.pushes)
	return out
}

// PushCount returns the number of recorded pushes.
func (m *MockChannel) PushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pushes)
}

// LastPush returns the most recent push, or a zero record if none.
func (m *MockChannel) LastPush() PushRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pushes) == 0 {
		return PushRecord{}
	}
	return m.pushes[len(m.pushes)-1]
}

// IsClosed returns whether Close was called.
func (m *MockChannel) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Ensure MockChannel implements ports.Channel.
var _ ports.Channel = (*MockChannel)(nil)

// MockDisplay implements ports.Display for testing: a plain in-memory text
// with a cursor and a rendered snapshot.
type MockDisplay struct {
	mu       sync.Mutex
	text     string
	cursor   int
	rendered string
}

// NewMockDisplay creates an empty display.
func NewMockDisplay() *MockDisplay {
	return &MockDisplay{}
}

// Text returns the displayed text.
func (m *MockDisplay) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// CursorPos returns the cursor offset.
func (m *MockDisplay) CursorPos() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// SetContent replaces the displayed text and cursor.
func (m *MockDisplay) SetContent(text string, cursor int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.cursor = cursor
}

// LastRendered returns the recorded rendered snapshot.
func (m *MockDisplay) LastRendered() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rendered
}

// SaveRendered records the rendered snapshot.
func (m *MockDisplay) SaveRendered(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rendered = text
}

// Type simulates the user replacing the displayed text, as the edit
// callback would observe it. The rendered snapshot is left untouched.
func (m *MockDisplay) Type(text string, cursor int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.cursor = cursor
}

// Ensure MockDisplay implements ports.Display.
var _ ports.Display = (*MockDisplay)(nil)

// MockTree implements ports.Tree for testing.
type MockTree struct {
	mu    sync.Mutex
	nodes map[string]bool
}

// NewMockTree creates an empty tree.
func NewMockTree() *MockTree {
	return &MockTree{nodes: make(map[string]bool)}
}

// AddNode records a listing entry.
func (m *MockTree) AddNode(path string, isDir bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[path] = isDir
}

// NodeCount returns the number of recorded entries.
func (m *MockTree) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// HasNode reports whether a path was listed.
func (m *MockTree) HasNode(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[path]
	return ok
}

// Ensure MockTree implements ports.Tree.
var _ ports.Tree = (*MockTree)(nil)

// AssertEqual is a simple equality assertion helper.
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertTrue asserts that a condition is true.
func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("%s: expected true, got false", msg)
	}
}

// AssertNoError asserts that an error is nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}
