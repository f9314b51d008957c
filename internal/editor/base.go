package editor

// BaseText holds the last text snapshot confirmed by the remote side along
// with its revision. The revision is only ever set from remote-confirmed
// state: wholesale on a dump, incrementally on a save notification. It is
// never advanced speculatively by local edits.
type BaseText struct {
	text string
	rev  int64
}

// NewBaseText creates an empty base snapshot at revision zero.
func NewBaseText() *BaseText {
	return &BaseText{}
}

// Put replaces the stored text wholesale and sets the revision. Used when a
// full dump arrives.
func (b *BaseText) Put(text string, vers int64) {
	b.text = text
	b.rev = vers
}

// Apply advances the stored text by applying remote operations in order and
// records the revision the server attached to them.
func (b *BaseText) Apply(ops []Operation, vers int64) {
	b.text = Compose(b.text, ops)
	b.rev = vers
}

// Text returns the current stored text.
func (b *BaseText) Text() string {
	return b.text
}

// Revision returns the last server-confirmed revision.
func (b *BaseText) Revision() int64 {
	return b.rev
}
