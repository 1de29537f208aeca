package audit

import "context"

// Entry records a single tool invocation for the audit trail.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Tool       string `json:"tool"`
	Transport  string `json:"transport"` // "mcp_stdio" or "in_process"
	RequestID  string `json:"request_id"`
	Parameters string `json:"parameters"`
	Result     string `json:"result"`
	Error      string `json:"error_message"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"` // "success", "failure" or "error"
}

const (
	StatusSuccess = "success"
	// StatusFailure marks a call that returned a success=false envelope.
	StatusFailure = "failure"
	// StatusError marks a call whose handler returned an error.
	StatusError = "error"
)

// Logger writes audit entries to storage.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	LogAsync(entry *Entry)
	Close() error
}
