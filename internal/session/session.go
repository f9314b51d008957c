// Package session implements the editing-session state machine: lifecycle
// of the open document, buffering of local edits, periodic flush to the
// server, and merge of remote edits into the displayed text.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/WINOT/wide.py/internal/domain"
	"github.com/WINOT/wide.py/internal/domain/ports"
	"github.com/WINOT/wide.py/internal/editor"
	"github.com/WINOT/wide.py/internal/protocol"
)

// Config carries the session tunables.
type Config struct {
	// FlushInterval is the period of the sync scheduler. Zero selects
	// DefaultFlushInterval.
	FlushInterval time.Duration
}

type eventKind int

const (
	evMessage eventKind = iota
	evSelect
	evEdit
)

type event struct {
	kind eventKind
	path string
	msg  protocol.Message
}

// Session keeps a locally edited document synchronized with its remote
// authoritative copy.
//
// All mutable state is confined to the run loop: timer ticks, inbound
// messages and local-input notifications are delivered as events, and each
// handler runs to completion before the next event is processed, so the
// document, base snapshot and pending buffer need no locking.
type Session struct {
	channel ports.Channel
	display ports.Display
	tree    ports.Tree

	state    State
	file     string                // active document while editing
	target   string                // awaited document while opening
	deferred string                // selection made before the listing loaded
	early    []protocol.SaveBundle // updates received during the open handshake

	base    *editor.BaseText
	pending *editor.ChangeBuffer
	sched   *Scheduler

	events chan event
	stop   chan struct{}
	done   chan struct{}
}

// New creates a session bound to its collaborators. Run must be called
// before the session reacts to anything.
func New(channel ports.Channel, display ports.Display, tree ports.Tree, cfg Config) *Session {
	return &Session{
		channel: channel,
		display: display,
		tree:    tree,
		state:   StateInit,
		base:    editor.NewBaseText(),
		pending: editor.NewChangeBuffer(),
		sched:   NewScheduler(cfg.FlushInterval),
		events:  make(chan event, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// File returns the path of the active document, or "" outside the editing
// state.
func (s *Session) File() string {
	return s.file
}

// Revision returns the last server-confirmed revision of the document.
func (s *Session) Revision() int64 {
	return s.base.Revision()
}

// Run drives the event loop until ctx is cancelled or Stop is called. On
// the way out an active editing session is left cleanly: scheduler stopped,
// one final flush, close notification sent.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	s.requestTree(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		case <-s.sched.Ticks():
			s.flush()
		}
	}
}

// Stop ends the run loop and blocks until teardown completed. Call at most
// once.
func (s *Session) Stop() {
	close(s.stop)
	<-s.done
}

// Select notifies the session that the user picked a file in the tree.
func (s *Session) Select(path string) {
	s.post(event{kind: evSelect, path: path})
}

// NotifyEdit notifies the session that the user edited the displayed text.
func (s *Session) NotifyEdit() {
	s.post(event{kind: evEdit})
}

// Deliver hands an inbound server message to the session.
func (s *Session) Deliver(msg protocol.Message) {
	s.post(event{kind: evMessage, msg: msg})
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
		log.Debug().Msg("event dropped: session stopped")
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evMessage:
		s.handleMessage(ctx, ev.msg)
	case evSelect:
		s.handleSelect(ctx, ev.path)
	case evEdit:
		s.handleEdit()
	}
}

// requestTree is the entry action of the init state: ask for the full
// project listing. The response is fed back into the loop as a tree
// message.
func (s *Session) requestTree(ctx context.Context) {
	go func() {
		payload, err := s.channel.Request(ctx, protocol.OpTree, nil)
		if err != nil {
			log.Error().Err(err).Msg("tree request failed")
			return
		}
		s.Deliver(protocol.Message{Op: protocol.OpTree, Payload: payload})
	}()
}

func (s *Session) handleMessage(ctx context.Context, msg protocol.Message) {
	switch msg.Op {
	case protocol.OpTree:
		s.handleTree(ctx, msg.Payload)
	case protocol.OpDump:
		s.handleDump(msg.Payload)
	case protocol.OpSave:
		s.handleSave(msg.Payload)
	default:
		log.Warn().Str("op", msg.Op).Stringer("state", s.state).Msg("discarding unexpected opcode")
	}
}

func (s *Session) handleTree(ctx context.Context, payload json.RawMessage) {
	if s.state != StateInit {
		log.Warn().Stringer("state", s.state).Msg("discarding listing outside init state")
		return
	}

	var result protocol.TreeResult
	if err := json.Unmarshal(payload, &result); err != nil {
		log.Warn().Err(err).Msg("discarding malformed listing")
		return
	}

	for _, node := range result.Nodes {
		s.tree.AddNode(node.Node, node.IsDir)
	}
	s.state = StateIdle
	log.Info().Int("nodes", len(result.Nodes)).Msg("project listing loaded")

	if s.deferred != "" {
		path := s.deferred
		s.deferred = ""
		s.beginOpen(ctx, path)
	}
}

func (s *Session) handleSelect(ctx context.Context, path string) {
	switch s.state {
	case StateInit:
		// The listing is still in flight; the selection is applied once
		// it lands.
		s.deferred = path
		log.Debug().Str("file", path).Msg("selection deferred until listing loads")
	case StateOpening:
		// The in-flight transition completes undisturbed.
		log.Warn().Str("file", path).Str("target", s.target).
			Msg("selection rejected: open handshake in flight")
	case StateEditing:
		if path == s.file {
			log.Debug().Str("file", path).Msg("reselected the open file")
			return
		}
		s.leaveEditing()
		s.beginOpen(ctx, path)
	case StateIdle:
		s.beginOpen(ctx, path)
	}
}

// beginOpen starts the open handshake for target. Updates for the target
// may legitimately arrive before its dump; they are buffered from this
// point and replayed once the dump lands.
func (s *Session) beginOpen(ctx context.Context, target string) {
	if !protocol.ValidPath(target) {
		log.Warn().Str("file", target).Err(domain.ErrInvalidPath).Msg("selection rejected")
		return
	}

	s.state = StateOpening
	s.target = target
	s.early = nil
	log.Info().Str("file", target).Msg("opening file")

	go func() {
		payload, err := s.channel.Request(ctx, protocol.OpOpen, protocol.OpenRequest{File: target})
		if err != nil {
			log.Error().Str("file", target).Err(err).Msg("open request failed")
			return
		}
		s.Deliver(protocol.Message{Op: protocol.OpDump, Payload: payload})
	}()
}

func (s *Session) handleDump(payload json.RawMessage) {
	var dump protocol.Dump
	if err := json.Unmarshal(payload, &dump); err != nil {
		log.Warn().Err(err).Msg("discarding malformed dump")
		return
	}

	switch s.state {
	case StateOpening:
		if dump.File != s.target {
			log.Warn().Str("file", dump.File).Str("target", s.target).
				Msg("discarding dump for another file")
			return
		}
		s.enterEditing(dump)
	case StateEditing:
		if dump.File != s.file {
			log.Warn().Str("file", dump.File).Str("open", s.file).
				Msg("discarding dump for another file")
			return
		}
		// A repeated dump resets the session wholesale, pending edits
		// included.
		s.base.Put(dump.Content, dump.Vers)
		s.pending.Clear()
		s.render(s.display.CursorPos())
		log.Info().Str("file", dump.File).Int64("vers", dump.Vers).Msg("dump reapplied")
	default:
		log.Warn().Str("file", dump.File).Stringer("state", s.state).
			Msg("discarding dump outside a session")
	}
}

// enterEditing applies the dump as the base snapshot, replays any updates
// buffered during the handshake in arrival order, renders, and starts the
// sync scheduler.
func (s *Session) enterEditing(dump protocol.Dump) {
	s.state = StateEditing
	s.file = dump.File
	s.target = ""

	s.base.Put(dump.Content, dump.Vers)
	s.pending.Clear()

	for _, bundle := range s.early {
		s.applyRemote(bundle)
	}
	s.early = nil

	s.render(0)
	s.sched.Start()
	log.Info().Str("file", s.file).Int64("vers", s.base.Revision()).Msg("editing session started")
}

func (s *Session) handleSave(payload json.RawMessage) {
	var bundle protocol.SaveBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		log.Warn().Err(err).Msg("discarding malformed save")
		return
	}

	switch s.state {
	case StateOpening:
		if bundle.File != s.target {
			log.Warn().Str("file", bundle.File).Str("target", s.target).
				Msg("discarding update for another file")
			return
		}
		s.early = append(s.early, bundle)
		log.Debug().Str("file", bundle.File).Int64("vers", bundle.Vers).
			Msg("buffered update awaiting dump")
	case StateEditing:
		if bundle.File != s.file {
			log.Warn().Str("file", bundle.File).Str("open", s.file).
				Msg("discarding update for another file")
			return
		}
		cursor := s.display.CursorPos()
		ops, ok := s.applyRemote(bundle)
		if !ok {
			return
		}
		s.render(editor.TransformPosAll(cursor, ops))
	default:
		log.Warn().Str("file", bundle.File).Stringer("state", s.state).
			Msg("discarding update outside a session")
	}
}

// applyRemote advances the base snapshot with a remote bundle and shifts
// the pending local operations underneath it. Bundles at or below the
// current revision are stale and dropped.
func (s *Session) applyRemote(bundle protocol.SaveBundle) ([]editor.Operation, bool) {
	if bundle.Vers <= s.base.Revision() {
		log.Debug().Str("file", bundle.File).Int64("vers", bundle.Vers).
			Int64("current", s.base.Revision()).Msg("dropping stale update")
		return nil, false
	}

	ops, err := bundle.Operations()
	if err != nil {
		log.Warn().Str("file", bundle.File).Err(err).Msg("discarding malformed update")
		return nil, false
	}

	s.base.Apply(ops, bundle.Vers)
	s.pending.Merge(ops)
	return ops, true
}

// handleEdit turns the user's latest input into pending operations by
// diffing the displayed text against the last rendered snapshot.
func (s *Session) handleEdit() {
	if s.state != StateEditing {
		log.Debug().Stringer("state", s.state).Msg("ignoring edit outside editing state")
		return
	}

	current := s.display.Text()
	ops := editor.Diff(s.display.LastRendered(), current)
	if len(ops) == 0 {
		return
	}

	s.pending.Append(ops...)
	s.display.SaveRendered(current)
	log.Debug().Int("ops", len(ops)).Int("pending", s.pending.Len()).Msg("local edit buffered")
}

// flush drains the pending buffer and pushes it as one bundle tagged with
// the file identity and revision. The buffer is cleared before the send is
// attempted: delivery is at most once, and a transport failure loses the
// drained edits.
func (s *Session) flush() {
	if s.state != StateEditing || s.pending.Len() == 0 {
		return
	}

	ops := s.pending.Drain()
	bundle := protocol.BundleFromOperations(s.file, s.base.Revision(), ops)
	if err := s.channel.Push(protocol.OpSave, bundle); err != nil {
		log.Error().Str("file", s.file).Int("ops", len(ops)).Err(err).
			Msg("flush failed, edits lost")
		return
	}
	log.Debug().Str("file", s.file).Int("ops", len(ops)).Msg("flushed pending edits")
}

// leaveEditing tears the editing state down: scheduler first, then one
// final flush so nothing is silently dropped, then the close notification.
func (s *Session) leaveEditing() {
	s.sched.Stop()
	s.flush()
	if err := s.channel.Push(protocol.OpClose, protocol.CloseRequest{File: s.file}); err != nil {
		log.Warn().Str("file", s.file).Err(err).Msg("close notification failed")
	}
	log.Info().Str("file", s.file).Msg("editing session closed")
	s.file = ""
	s.state = StateIdle
}

func (s *Session) teardown() {
	if s.state == StateEditing {
		s.leaveEditing()
	}
}

// render recomposes the displayed text from the base snapshot and the
// pending buffer, places the cursor, and records the result as the rendered
// snapshot.
func (s *Session) render(cursor int) {
	text := editor.Compose(s.base.Text(), s.pending.Ops())
	if n := len([]rune(text)); cursor > n {
		cursor = n
	}
	if cursor < 0 {
		cursor = 0
	}
	s.display.SetContent(text, cursor)
	s.display.SaveRendered(text)
}
