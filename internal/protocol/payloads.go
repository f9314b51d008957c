package protocol

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/WINOT/wide.py/internal/domain"
	"github.com/WINOT/wide.py/internal/editor"
)

// TreeNode is one entry of the project listing.
type TreeNode struct {
	Node  string `json:"node"`
	IsDir bool   `json:"isDir"`
}

// TreeResult is the response payload of a tree request.
type TreeResult struct {
	Nodes []TreeNode `json:"nodes"`
}

// OpenRequest asks the server to subscribe this client to a file and answer
// with its dump.
type OpenRequest struct {
	File string `json:"file"`
}

// CloseRequest unsubscribes this client from a file.
type CloseRequest struct {
	File string `json:"file"`
}

// Dump is a full-text snapshot of a document plus its revision.
type Dump struct {
	File    string `json:"file"`
	Content string `json:"content"`
	Vers    int64  `json:"vers"`
}

// Change is one positional edit on the wire. Kind is "insert" or "delete";
// Text is set for inserts, Length for deletes.
type Change struct {
	Kind   string `json:"kind"`
	Pos    int    `json:"pos"`
	Text   string `json:"text,omitempty"`
	Length int    `json:"length,omitempty"`
}

// SaveBundle groups the changes of one flush (outbound) or one server
// notification (inbound), tagged with the file identity and revision.
type SaveBundle struct {
	File    string   `json:"file"`
	Changes []Change `json:"changes"`
	Vers    int64    `json:"vers"`
}

// ExportRequest carries an arbitrary export-target descriptor.
type ExportRequest struct {
	Target json.RawMessage `json:"target"`
}

// ValidPath reports whether p is an acceptable document path: absolute,
// normalized, and not directory-terminated.
func ValidPath(p string) bool {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "/"
	}
	return p == path.Clean(trimmed) &&
		strings.HasPrefix(p, "/") &&
		!strings.HasSuffix(p, "/")
}

// Validate checks the shape rules for a wire change: non-negative position,
// inserts carry text, deletes carry a non-negative length.
func (c Change) Validate() error {
	if c.Pos < 0 {
		return domain.ErrInvalidChange
	}
	switch c.Kind {
	case string(editor.KindInsert):
		if c.Text == "" {
			return domain.ErrInvalidChange
		}
	case string(editor.KindDelete):
		if c.Length < 0 {
			return domain.ErrInvalidChange
		}
	default:
		return domain.ErrInvalidChange
	}
	return nil
}

// Operation converts the wire change to an engine operation.
func (c Change) Operation() editor.Operation {
	if c.Kind == string(editor.KindDelete) {
		return editor.Delete(c.Pos, c.Length)
	}
	return editor.Insert(c.Pos, c.Text)
}

// ChangeFromOperation converts an engine operation to its wire shape.
func ChangeFromOperation(op editor.Operation) Change {
	c := Change{Kind: string(op.Kind), Pos: op.Pos}
	if op.Kind == editor.KindDelete {
		c.Length = op.Length
	} else {
		c.Text = op.Text
	}
	return c
}

// Operations converts a decoded bundle to engine operations, rejecting the
// whole bundle if any change is malformed.
func (b SaveBundle) Operations() ([]editor.Operation, error) {
	ops := make([]editor.Operation, 0, len(b.Changes))
	for _, c := range b.Changes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		ops = append(ops, c.Operation())
	}
	return ops, nil
}

// BundleFromOperations builds an outgoing save bundle from drained pending
// operations, preserving their order.
func BundleFromOperations(file string, vers int64, ops []editor.Operation) SaveBundle {
	changes := make([]Change, 0, len(ops))
	for _, op := range ops {
		changes = append(changes, ChangeFromOperation(op))
	}
	return SaveBundle{File: file, Changes: changes, Vers: vers}
}
