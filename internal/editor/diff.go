package editor

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff compares two text snapshots and returns the ordered operations that
// turn oldText into newText when applied sequentially.
//
// The diff spans are walked left to right with a running cursor over the
// evolving text: an equal span only advances the cursor, a deleted span
// emits a delete at the cursor without advancing it (the following old
// content now sits at that offset), and an inserted span emits an insert at
// the cursor and then advances past the inserted width. A highlight-and-
// replace edit therefore yields a delete followed by an insert anchored at
// the same offset.
func Diff(oldText, newText string) []Operation {
	if oldText == newText {
		return nil
	}

	dmp := diffmatchpatch.New()
	spans := dmp.DiffMain(oldText, newText, false)
	spans = dmp.DiffCleanupSemantic(spans)

	var ops []Operation
	at := 0
	for _, span := range spans {
		width := utf8.RuneCountInString(span.Text)
		switch span.Type {
		case diffmatchpatch.DiffDelete:
			ops = append(ops, Delete(at, width))
		case diffmatchpatch.DiffInsert:
			ops = append(ops, Insert(at, span.Text))
			at += width
		case diffmatchpatch.DiffEqual:
			at += width
		}
	}
	return ops
}
