package editor

// ChangeBuffer accumulates local operations that have not been transmitted
// yet. Entries keep insertion order and are never coalesced; sequential
// application composes them correctly.
//
// The buffer is not synchronized. All access happens on the session's event
// loop, which runs handlers to completion one at a time.
type ChangeBuffer struct {
	ops []Operation
}

// NewChangeBuffer creates an empty change buffer.
func NewChangeBuffer() *ChangeBuffer {
	return &ChangeBuffer{}
}

// Add appends a local insert of text at pos.
func (b *ChangeBuffer) Add(pos int, text string) {
	b.ops = append(b.ops, Insert(pos, text))
}

// Remove appends a local delete of length runes at pos.
func (b *ChangeBuffer) Remove(pos, length int) {
	b.ops = append(b.ops, Delete(pos, length))
}

// Append adds an already-built operation to the buffer.
func (b *ChangeBuffer) Append(ops ...Operation) {
	b.ops = append(b.ops, ops...)
}

// Ops returns a read-only snapshot of the pending operations.
func (b *ChangeBuffer) Ops() []Operation {
	out := make([]Operation, len(b.ops))
	copy(out, b.ops)
	return out
}

// Len returns the number of pending operations.
func (b *ChangeBuffer) Len() int {
	return len(b.ops)
}

// Clear empties the buffer. Called when a full dump supersedes all pending
// local state.
func (b *ChangeBuffer) Clear() {
	b.ops = nil
}

// Drain atomically snapshots and empties the buffer. The flush path clears
// before transmission begins, so a tick transmits exactly the drained
// operations and a second tick with no new edits is a no-op.
func (b *ChangeBuffer) Drain() []Operation {
	ops := b.ops
	b.ops = nil
	return ops
}

// Merge folds remote operations underneath the pending local ones, shifting
// local positions so that composing the advanced base snapshot with the
// buffer still yields the correct display text.
func (b *ChangeBuffer) Merge(remote []Operation) {
	for _, r := range remote {
		for i := range b.ops {
			b.ops[i] = b.ops[i].WithPos(r.TransformPos(b.ops[i].Pos))
		}
	}
}
