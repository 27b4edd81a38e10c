package syncengine

// OpKind is the kind of change a SyncOp represents.
type OpKind int

const (
	OpCreate OpKind = iota
	OpModify
	OpDelete
	OpRename
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Op is one change to apply on the peer to converge it with the local
// index (spec §4.9 "Applying the plan").
type Op struct {
	Kind        OpKind
	Path        string // target path; for Rename, the destination
	FromPath    string // only set for Rename
	EntryKind   EntryKind
	Size        uint64
	ContentHash uint64
}
