// Package editor implements the change-synchronization engine: positional
// edit operations, the diff adapter that produces them, the pending-change
// buffer, and the base-text store that tracks the last server-confirmed
// snapshot of the open document.
package editor

// Kind identifies the type of a positional edit.
type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Operation is a single positional edit against a text snapshot. Positions
// are rune offsets into the text as it was immediately before the operation
// applies. Operations are immutable values.
type Operation struct {
	Kind   Kind
	Pos    int
	Text   string // inserted text, KindInsert only
	Length int    // runes removed, KindDelete only
}

// Insert creates an insert operation placing text at pos.
func Insert(pos int, text string) Operation {
	return Operation{Kind: KindInsert, Pos: pos, Text: text}
}

// Delete creates a delete operation removing length runes starting at pos.
func Delete(pos, length int) Operation {
	return Operation{Kind: KindDelete, Pos: pos, Length: length}
}

// WithPos returns a copy of the operation anchored at a new position.
func (o Operation) WithPos(pos int) Operation {
	o.Pos = pos
	return o
}

// ApplyToText applies the operation to text and returns the resulting text.
// Out-of-range positions and lengths are clamped to the text bounds.
func (o Operation) ApplyToText(text string) string {
	runes := []rune(text)
	pos := clamp(o.Pos, 0, len(runes))

	switch o.Kind {
	case KindInsert:
		out := make([]rune, 0, len(runes)+len([]rune(o.Text)))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(o.Text)...)
		out = append(out, runes[pos:]...)
		return string(out)
	case KindDelete:
		end := clamp(pos+o.Length, pos, len(runes))
		out := make([]rune, 0, len(runes)-(end-pos))
		out = append(out, runes[:pos]...)
		out = append(out, runes[end:]...)
		return string(out)
	}
	return text
}

// TransformPos maps a cursor position across the operation. An insert at or
// before the cursor shifts it right by the inserted width; a delete before
// the cursor shifts it left by the overlap with the removed span, which
// clamps a cursor inside the span to the deletion start.
func (o Operation) TransformPos(pos int) int {
	switch o.Kind {
	case KindInsert:
		if o.Pos <= pos {
			return pos + len([]rune(o.Text))
		}
	case KindDelete:
		if o.Pos < pos {
			overlap := pos - o.Pos
			if overlap > o.Length {
				overlap = o.Length
			}
			return pos - overlap
		}
	}
	return pos
}

// Width returns the rune span the operation covers: inserted width for
// inserts, removed length for deletes.
func (o Operation) Width() int {
	if o.Kind == KindInsert {
		return len([]rune(o.Text))
	}
	return o.Length
}

// Compose applies ops to base in order and returns the resulting text. This
// is how the displayed text is derived from the base snapshot plus the
// pending local changes.
func Compose(base string, ops []Operation) string {
	text := base
	for _, op := range ops {
		text = op.ApplyToText(text)
	}
	return text
}

// TransformPosAll maps a cursor position across a sequence of operations.
func TransformPosAll(pos int, ops []Operation) int {
	for _, op := range ops {
		pos = op.TransformPos(pos)
	}
	return pos
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
