// Package ports defines the narrow interfaces through which the editing
// session consumes its external collaborators: the message channel to the
// server, the display surface showing the document, and the tree browser.
package ports

import (
	"context"
	"encoding/json"
)

// Channel is a bidirectional named-message connection to the IDE server.
// Request sends an opcode-tagged payload and waits for the matching
// response; Push is fire-and-forget with no response expected. A failed
// Push surfaces through the returned error so a stricter delivery policy
// could be substituted without touching the state machine.
type Channel interface {
	Request(ctx context.Context, op string, payload interface{}) (json.RawMessage, error)
	Push(op string, payload interface{}) error
	Close() error
}

// Display is the surface rendering the document to the user. The session
// reads the edited text and cursor from it, pushes recomposed content back,
// and tracks the last text it rendered so local edits can be diffed against
// a known snapshot.
type Display interface {
	// Text returns the text currently shown, including unsent local edits.
	Text() string

	// CursorPos returns the rune offset of the user's cursor.
	CursorPos() int

	// SetContent replaces the shown text and repositions the cursor.
	SetContent(text string, cursor int)

	// LastRendered returns the snapshot recorded by the last SaveRendered.
	LastRendered() string

	// SaveRendered records text as the rendered snapshot that future local
	// edits are diffed against.
	SaveRendered(text string)
}

// Tree receives the project listing as it arrives from the server.
type Tree interface {
	AddNode(path string, isDir bool)
}
