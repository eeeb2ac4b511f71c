package model

// Status is the verification state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further automatic transition applies.
// Link regeneration is the only way out of a terminal state.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusAccepted, StatusRejected:
		return true
	}
	return false
}
