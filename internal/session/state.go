package session

// State identifies the lifecycle phase of the editing session. Exactly one
// state is active at a time.
type State int

const (
	// StateInit is the startup phase: the project listing has been
	// requested and nothing else is handled until it arrives.
	StateInit State = iota

	// StateIdle means the listing is loaded and no file is selected.
	StateIdle

	// StateOpening means an open handshake is in flight: updates for the
	// awaited file are buffered until its dump lands.
	StateOpening

	// StateEditing means a document is open and synchronizing.
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateEditing:
		return "editing"
	default:
		return "unknown"
	}
}
