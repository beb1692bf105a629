package checks

// Partition is one of the three derived result sets.
type Partition string

const (
	PartitionDefault   Partition = "default"
	PartitionValidated Partition = "validated"
	PartitionRejected  Partition = "rejected"
)

// Valid reports whether p names a known partition.
func (p Partition) Valid() bool {
	switch p {
	case PartitionDefault, PartitionValidated, PartitionRejected:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:     {StatusValidated, StatusNeedsReview, StatusRejected},
	StatusNeedsReview: {StatusValidated, StatusRejected},
	StatusValidated:   {StatusNeedsReview, StatusRejected},
	StatusRejected:    {StatusNeedsReview},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// PartitionOf maps a status to the partition that holds it.
// pending and needs_review share the default partition.
func PartitionOf(s Status) Partition {
	switch s {
	case StatusValidated:
		return PartitionValidated
	case StatusRejected:
		return PartitionRejected
	default:
		return PartitionDefault
	}
}
