package remote

// JobStatus is the closed set of remote job states. Raw strings from the
// wire are mapped here immediately on deserialization; callers never
// branch on server strings.
type JobStatus int

const (
	StatusUnknown JobStatus = iota
	StatusPending
	StatusProcessing
	StatusCompleted
	StatusFailed
)

// ParseJobStatus maps a wire status string to a JobStatus. Unrecognized
// values map to StatusUnknown for forward compatibility.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "pending":
		return StatusPending
	case "processing":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further transition is expected from this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
