package sync

// State tracks where a sync pass is in its lifecycle. A pass moves
// forward through the states in order and ends in Done, or jumps to
// Aborted when project validation or the primary document fails.
type State int

const (
	StateIdle State = iota
	StateValidatingProject
	StateSyncingPrimary
	StateEnumerating
	StateSyncingFileSet
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidatingProject:
		return "validating project"
	case StateSyncingPrimary:
		return "syncing primary document"
	case StateEnumerating:
		return "enumerating files"
	case StateSyncingFileSet:
		return "syncing file set"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the pass has finished, successfully or not.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}
