package reconcile

// State classifies a declared file against the store and the live target
type State int

const (
	NotDeployed State = iota
	UpToDate
	Stale
	OperationChanged
)

func (s State) String() string {
	switch s {
	case NotDeployed:
		return "not-deployed"
	case UpToDate:
		return "up-to-date"
	case Stale:
		return "stale"
	case OperationChanged:
		return "operation-changed"
	default:
		return "unknown"
	}
}

// Result reports what Deploy found and did for one file
type Result struct {
	Target  string
	State   State
	Changed bool
}
