package jobs

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusInterrupted only appears in state files left behind by a crash.
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
