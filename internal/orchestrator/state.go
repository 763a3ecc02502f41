package orchestrator

type State int

const (
	Stopped State = iota
	Waiting
	Downloading
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Waiting:
		return "waiting"
	case Downloading:
		return "downloading"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventFileInfo
	EventProgress
	EventFinished
	EventSegmentError
	EventDiagnostic
)

// Event is one entry of the caller-facing stream. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind     EventKind
	State    State
	FileName string
	Ready    int64
	Total    int64
	Index    int
	Err      error
	Message  string
}
