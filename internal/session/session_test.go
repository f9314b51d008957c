package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/WINOT/wide.py/internal/editor"
	"github.com/WINOT/wide.py/internal/protocol"
	"github.com/WINOT/wide.py/internal/testutil"
)

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return data
}

// newTestSession builds a session with mocked collaborators. Tests drive
// the handlers directly: they run to completion one at a time, exactly as
// the event loop invokes them.
func newTestSession(t *testing.T) (*Session, *testutil.MockChannel, *testutil.MockDisplay, *testutil.MockTree) {
	t.Helper()
	channel := testutil.NewMockChannel()
	display := testutil.NewMockDisplay()
	tree := testutil.NewMockTree()
	s := New(channel, display, tree, Config{FlushInterval: time.Hour})
	t.Cleanup(s.sched.Stop)
	return s, channel, display, tree
}

// enterEditingState walks the session through listing and open handshake
// until a document is open.
func enterEditingState(t *testing.T, s *Session, file, content string, vers int64) {
	t.Helper()
	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{
		Nodes: []protocol.TreeNode{{Node: file, IsDir: false}},
	}))
	s.handleSelect(context.Background(), file)
	s.handleDump(mustMarshal(t, protocol.Dump{File: file, Content: content, Vers: vers}))
	if s.State() != StateEditing {
		t.Fatalf("state = %v after open handshake, want editing", s.State())
	}
}

func decodeBundle(t *testing.T, rec testutil.PushRecord) protocol.SaveBundle {
	t.Helper()
	var bundle protocol.SaveBundle
	if err := json.Unmarshal(rec.Payload, &bundle); err != nil {
		t.Fatalf("bundle decode error: %v", err)
	}
	return bundle
}

func TestSession_ListingMovesToIdle(t *testing.T) {
	s, _, _, tree := newTestSession(t)

	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{
		Nodes: []protocol.TreeNode{
			{Node: "/src", IsDir: true},
			{Node: "/src/a.py", IsDir: false},
		},
	}))

	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if tree.NodeCount() != 2 || !tree.HasNode("/src/a.py") {
		t.Errorf("tree not populated: %d nodes", tree.NodeCount())
	}
}

func TestSession_SelectBeforeListingDeferred(t *testing.T) {
	s, channel, _, _ := newTestSession(t)
	channel.Respond(protocol.OpOpen, protocol.Dump{File: "/a.py", Content: "x=1", Vers: 3})

	s.handleSelect(context.Background(), "/a.py")
	if s.State() != StateInit {
		t.Fatalf("state = %v, want init while listing outstanding", s.State())
	}

	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{
		Nodes: []protocol.TreeNode{{Node: "/a.py", IsDir: false}},
	}))

	if s.State() != StateOpening {
		t.Fatalf("state = %v, want opening after listing", s.State())
	}
	waitFor(t, func() bool {
		reqs := channel.Requests()
		return len(reqs) == 1 && reqs[0] == protocol.OpOpen
	}, "deferred open request")
}

func TestSession_ListingOutsideInitDiscarded(t *testing.T) {
	s, _, _, tree := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{
		Nodes: []protocol.TreeNode{{Node: "/other", IsDir: true}},
	}))

	if s.State() != StateEditing {
		t.Errorf("state = %v, want editing unchanged", s.State())
	}
	if tree.HasNode("/other") {
		t.Error("late listing must not repopulate the tree")
	}
}

func TestSession_OpenHandshake(t *testing.T) {
	s, channel, display, _ := newTestSession(t)

	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{
		Nodes: []protocol.TreeNode{{Node: "/a.py", IsDir: false}},
	}))
	s.handleSelect(context.Background(), "/a.py")
	if s.State() != StateOpening {
		t.Fatalf("state = %v, want opening", s.State())
	}

	s.handleDump(mustMarshal(t, protocol.Dump{File: "/a.py", Content: "x=1", Vers: 3}))

	if s.State() != StateEditing {
		t.Fatalf("state = %v, want editing", s.State())
	}
	if s.File() != "/a.py" {
		t.Errorf("File() = %q, want /a.py", s.File())
	}
	if s.Revision() != 3 {
		t.Errorf("Revision() = %d, want 3", s.Revision())
	}
	if display.Text() != "x=1" || display.LastRendered() != "x=1" {
		t.Errorf("display text=%q rendered=%q, want x=1", display.Text(), display.LastRendered())
	}
	if !s.sched.Running() {
		t.Error("scheduler not started on entering editing state")
	}

	// The open request goes out asynchronously; give it a moment.
	waitFor(t, func() bool {
		reqs := channel.Requests()
		return len(reqs) == 1 && reqs[0] == protocol.OpOpen
	}, "open request")
}

func TestSession_InvalidPathRejected(t *testing.T) {
	s, channel, _, _ := newTestSession(t)
	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{}))

	s.handleSelect(context.Background(), "not/absolute")

	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if len(channel.Requests()) != 0 {
		t.Errorf("requests = %v, want none", channel.Requests())
	}
}

func TestSession_EarlyUpdatesReplayedInOrder(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{}))
	s.handleSelect(context.Background(), "/a.py")

	// Two incremental updates for the awaited file land before its dump.
	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/a.py", Vers: 4,
		Changes: []protocol.Change{{Kind: "insert", Pos: 3, Text: "\ny=2"}},
	}))
	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/a.py", Vers: 5,
		Changes: []protocol.Change{{Kind: "insert", Pos: 7, Text: "\nz=3"}},
	}))
	if s.State() != StateOpening {
		t.Fatalf("state = %v, want opening", s.State())
	}

	s.handleDump(mustMarshal(t, protocol.Dump{File: "/a.py", Content: "x=1", Vers: 3}))

	// Same base snapshot as if the updates had arrived after the dump.
	if got := s.base.Text(); got != "x=1\ny=2\nz=3" {
		t.Errorf("base = %q, want %q", got, "x=1\ny=2\nz=3")
	}
	if s.Revision() != 5 {
		t.Errorf("Revision() = %d, want 5", s.Revision())
	}
}

func TestSession_WrongFileUpdateWhileOpeningDiscarded(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{}))
	s.handleSelect(context.Background(), "/a.py")

	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/b.py", Vers: 9,
		Changes: []protocol.Change{{Kind: "insert", Pos: 0, Text: "nope"}},
	}))

	if len(s.early) != 0 {
		t.Errorf("buffered %d updates for another file, want 0", len(s.early))
	}
}

func TestSession_WrongFileDumpWhileOpeningDiscarded(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{}))
	s.handleSelect(context.Background(), "/a.py")

	s.handleDump(mustMarshal(t, protocol.Dump{File: "/b.py", Content: "other", Vers: 1}))

	if s.State() != StateOpening {
		t.Errorf("state = %v, want still opening", s.State())
	}
}

func TestSession_DuplicateDumpResetsPending(t *testing.T) {
	s, _, display, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	display.Type("x=10", 4)
	s.handleEdit()
	if s.pending.Len() == 0 {
		t.Fatal("expected pending operations after the edit")
	}

	s.handleDump(mustMarshal(t, protocol.Dump{File: "/a.py", Content: "x=1", Vers: 3}))

	if s.pending.Len() != 0 {
		t.Errorf("pending = %d after repeated dump, want 0", s.pending.Len())
	}
	if display.Text() != "x=1" {
		t.Errorf("display = %q, want %q", display.Text(), "x=1")
	}
	if s.State() != StateEditing {
		t.Errorf("state = %v, want editing", s.State())
	}
}

func TestSession_SelectWhileOpeningRejected(t *testing.T) {
	s, channel, _, _ := newTestSession(t)
	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{}))
	s.handleSelect(context.Background(), "/a.py")

	s.handleSelect(context.Background(), "/b.py")

	if s.target != "/a.py" {
		t.Errorf("target = %q, want /a.py undisturbed", s.target)
	}
	// Only the first open request went out. The request is issued
	// asynchronously, so allow it a moment to be recorded.
	time.Sleep(20 * time.Millisecond)
	if got := len(channel.Requests()); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestSession_ReselectSameFileIgnored(t *testing.T) {
	s, channel, _, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	s.handleSelect(context.Background(), "/a.py")

	if s.State() != StateEditing || s.File() != "/a.py" {
		t.Errorf("state = %v file = %q, want editing /a.py", s.State(), s.File())
	}
	if channel.PushCount() != 0 {
		t.Errorf("pushes = %d, want none", channel.PushCount())
	}
}

func TestSession_SwitchFileClosesPrevious(t *testing.T) {
	s, channel, _, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	s.handleSelect(context.Background(), "/b.py")

	if s.State() != StateOpening || s.target != "/b.py" {
		t.Errorf("state = %v target = %q, want opening /b.py", s.State(), s.target)
	}
	last := channel.LastPush()
	if last.Op != protocol.OpClose {
		t.Fatalf("last push op = %q, want close", last.Op)
	}
	var req protocol.CloseRequest
	if err := json.Unmarshal(last.Payload, &req); err != nil || req.File != "/a.py" {
		t.Errorf("close payload = %s, want file /a.py", last.Payload)
	}
	if s.sched.Running() {
		t.Error("scheduler still running after leaving the editing state")
	}
}

func TestSession_EditThenFlush(t *testing.T) {
	s, channel, display, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "hello world", 3)

	// Highlight "world", type "earth".
	display.Type("hello earth", 11)
	s.handleEdit()

	if got := editor.Compose(s.base.Text(), s.pending.Ops()); got != "hello earth" {
		t.Errorf("composed display text = %q, want %q", got, "hello earth")
	}

	s.flush()

	if s.pending.Len() != 0 {
		t.Errorf("pending = %d after flush, want 0", s.pending.Len())
	}
	bundle := decodeBundle(t, channel.LastPush())
	if bundle.File != "/a.py" || bundle.Vers != 3 {
		t.Errorf("bundle file=%q vers=%d, want /a.py 3", bundle.File, bundle.Vers)
	}
	if len(bundle.Changes) != 2 {
		t.Fatalf("bundle carries %d changes %+v, want 2", len(bundle.Changes), bundle.Changes)
	}
	if bundle.Changes[0].Kind != "delete" || bundle.Changes[0].Pos != 6 || bundle.Changes[0].Length != 5 {
		t.Errorf("changes[0] = %+v, want delete pos=6 length=5", bundle.Changes[0])
	}
	if bundle.Changes[1].Kind != "insert" || bundle.Changes[1].Pos != 6 || bundle.Changes[1].Text != "earth" {
		t.Errorf("changes[1] = %+v, want insert pos=6 text=earth", bundle.Changes[1])
	}

	// A tick with nothing pending transmits nothing.
	before := channel.PushCount()
	s.flush()
	if channel.PushCount() != before {
		t.Error("empty flush still transmitted a bundle")
	}
}

func TestSession_FlushFailureLosesEdits(t *testing.T) {
	s, channel, display, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	display.Type("x=2", 3)
	s.handleEdit()
	channel.SetPushError(errors.New("connection reset"))

	s.flush()

	// At most once: the buffer was drained before the send, no retry.
	if s.pending.Len() != 0 {
		t.Errorf("pending = %d after failed flush, want 0", s.pending.Len())
	}
	if channel.PushCount() != 0 {
		t.Errorf("pushes = %d, want 0", channel.PushCount())
	}
}

func TestSession_RemoteSaveMergesUnderPending(t *testing.T) {
	s, _, display, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	// Unsent local insert at pos 1.
	display.Type("xA=1", 2)
	s.handleEdit()

	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/a.py", Vers: 4,
		Changes: []protocol.Change{{Kind: "insert", Pos: 3, Text: "\ny=2"}},
	}))

	if got := s.base.Text(); got != "x=1\ny=2" {
		t.Errorf("base = %q, want %q", got, "x=1\ny=2")
	}
	if s.Revision() != 4 {
		t.Errorf("Revision() = %d, want 4", s.Revision())
	}
	// The local operation sits before offset 3 and must not move.
	if got := s.pending.Ops()[0].Pos; got != 1 {
		t.Errorf("pending op pos = %d, want 1", got)
	}
	if display.Text() != "xA=1\ny=2" {
		t.Errorf("display = %q, want %q", display.Text(), "xA=1\ny=2")
	}
}

func TestSession_RemoteSaveShiftsLaterPending(t *testing.T) {
	s, _, display, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	// Unsent local insert at the end of the text, at offset 3.
	display.Type("x=1;", 4)
	s.handleEdit()

	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/a.py", Vers: 4,
		Changes: []protocol.Change{{Kind: "insert", Pos: 0, Text: "# hdr\n"}},
	}))

	if got := s.pending.Ops()[0].Pos; got != 9 {
		t.Errorf("pending op pos = %d, want 9", got)
	}
	if display.Text() != "# hdr\nx=1;" {
		t.Errorf("display = %q, want %q", display.Text(), "# hdr\nx=1;")
	}
}

func TestSession_RemoteSaveRemapsCursor(t *testing.T) {
	s, _, display, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)
	display.SetContent("x=1", 3) // cursor at end

	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/a.py", Vers: 4,
		Changes: []protocol.Change{{Kind: "insert", Pos: 0, Text: "ab"}},
	}))

	if display.CursorPos() != 5 {
		t.Errorf("cursor = %d, want 5", display.CursorPos())
	}
}

func TestSession_StaleSaveDropped(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/a.py", Vers: 3,
		Changes: []protocol.Change{{Kind: "insert", Pos: 0, Text: "late"}},
	}))

	if got := s.base.Text(); got != "x=1" {
		t.Errorf("base = %q, want unchanged", got)
	}
	if s.Revision() != 3 {
		t.Errorf("Revision() = %d, want 3", s.Revision())
	}
}

func TestSession_WrongFileSaveWhileEditingDiscarded(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	s.handleSave(mustMarshal(t, protocol.SaveBundle{
		File: "/b.py", Vers: 9,
		Changes: []protocol.Change{{Kind: "insert", Pos: 0, Text: "nope"}},
	}))

	if got := s.base.Text(); got != "x=1" {
		t.Errorf("base = %q, want unchanged", got)
	}
}

func TestSession_EditOutsideEditingIgnored(t *testing.T) {
	s, _, display, _ := newTestSession(t)
	s.handleTree(context.Background(), mustMarshal(t, protocol.TreeResult{}))

	display.Type("stray", 5)
	s.handleEdit()

	if s.pending.Len() != 0 {
		t.Errorf("pending = %d, want 0", s.pending.Len())
	}
}

func TestSession_TeardownFlushesThenCloses(t *testing.T) {
	s, channel, display, _ := newTestSession(t)
	enterEditingState(t, s, "/a.py", "x=1", 3)

	display.Type("x=2", 3)
	s.handleEdit()

	s.teardown()

	pushes := channel.Pushes()
	if len(pushes) != 2 {
		t.Fatalf("got %d pushes %v, want save then close", len(pushes), pushes)
	}
	if pushes[0].Op != protocol.OpSave {
		t.Errorf("pushes[0].Op = %q, want save", pushes[0].Op)
	}
	if pushes[1].Op != protocol.OpClose {
		t.Errorf("pushes[1].Op = %q, want close", pushes[1].Op)
	}
	if s.sched.Running() {
		t.Error("scheduler still running after teardown")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

// TestSession_RunLoop drives the whole loop through the public API: listing,
// open handshake, a local edit picked up by a scheduler tick, and shutdown.
func TestSession_RunLoop(t *testing.T) {
	channel := testutil.NewMockChannel()
	display := testutil.NewMockDisplay()
	tree := testutil.NewMockTree()

	channel.Respond(protocol.OpTree, protocol.TreeResult{
		Nodes: []protocol.TreeNode{{Node: "/a.py", IsDir: false}},
	})
	channel.Respond(protocol.OpOpen, protocol.Dump{File: "/a.py", Content: "x=1", Vers: 3})

	s := New(channel, display, tree, Config{FlushInterval: 20 * time.Millisecond})
	go s.Run(context.Background())

	waitFor(t, func() bool { return tree.HasNode("/a.py") }, "listing")
	s.Select("/a.py")
	waitFor(t, func() bool { return display.Text() == "x=1" }, "dump rendered")

	display.Type("x=1\ny=2", 7)
	s.NotifyEdit()
	waitFor(t, func() bool {
		return channel.PushCount() > 0 && channel.LastPush().Op == protocol.OpSave
	}, "scheduled flush")

	bundle := decodeBundle(t, channel.LastPush())
	if len(bundle.Changes) != 1 || bundle.Changes[0].Text != "\ny=2" {
		t.Errorf("flushed bundle = %+v", bundle)
	}

	s.Stop()
	if last := channel.LastPush(); last.Op != protocol.OpClose {
		t.Errorf("last push after Stop = %q, want close", last.Op)
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
