package uploader

import (
	"time"
)

// TaskStatus is an upload task's position in its lifecycle.
type TaskStatus int

const (
	TaskUploading TaskStatus = iota
	TaskProcessing
	TaskCompleted
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskUploading:
		return "uploading"
	case TaskProcessing:
		return "processing"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its lowercase name in JSON.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Task is one artifact's journey from upload through remote processing to a
// terminal outcome. Values handed to observers are snapshots; the queue owns
// the live state.
type Task struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`
	Title    string `json:"title,omitempty"`
	Language string `json:"language,omitempty"`

	Status         TaskStatus `json:"status"`
	UploadProgress float64    `json:"upload_progress"`
	RemoteJobID    string     `json:"remote_job_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`

	ProcessingStartedAt time.Time `json:"processing_started_at,omitzero"`
	ProcessingProgress  float64   `json:"processing_progress"`
}
