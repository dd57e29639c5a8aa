package history

// EventType classifies a model lifecycle event.
type EventType string

const (
	EventTypeDownloadStarted   EventType = "download_started"
	EventTypeDownloadCompleted EventType = "download_completed"
	EventTypeDownloadFailed    EventType = "download_failed"
	EventTypeModelDeleted      EventType = "model_deleted"
)

// Entry is a recorded model lifecycle event.
type Entry struct {
	ID        int64     `json:"id"`
	EventType EventType `json:"eventType"`
	Filename  string    `json:"filename"`
	Source    string    `json:"source,omitempty"`
	SizeBytes int64     `json:"sizeBytes,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt string    `json:"createdAt"`
}

// CreateInput contains fields for recording an event.
type CreateInput struct {
	EventType EventType
	Filename  string
	Source    string
	SizeBytes int64
	Error     string
}

// ListOptions contains options for listing history.
type ListOptions struct {
	EventType string
	Filename  string
	Page      int
	PageSize  int
}

// ListResponse contains paginated history results.
type ListResponse struct {
	Items      []*Entry `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalCount int64    `json:"totalCount"`
	TotalPages int      `json:"totalPages"`
}
