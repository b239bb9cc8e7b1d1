package models

import (
	"encoding/json"
	"time"
)

// ActionStatus is the replay state of a queued action.
type ActionStatus string

const (
	StatusPending   ActionStatus = "Pending"
	StatusReplaying ActionStatus = "Replaying"
	StatusAbandoned ActionStatus = "Abandoned"
)

// QueuedAction is one deferred mutating request.
type QueuedAction struct {
	ID          int64           `json:"id"`
	RequestID   string          `json:"request_id"`
	Action      string          `json:"action"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	Status      ActionStatus    `json:"status"`
}

// Attachment is a binary part of a multipart write. Data is only set
// before enqueue and on replay; the queue itself stores Ref.
type Attachment struct {
	Field       string `json:"field"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Ref         string `json:"ref,omitempty"`
	Data        []byte `json:"-"`
}

// QueueStats summarizes the queue by status.
type QueueStats struct {
	Pending   int `json:"pending"`
	Replaying int `json:"replaying"`
	Abandoned int `json:"abandoned"`
}

// Total returns the number of actions still held by the queue.
func (s QueueStats) Total() int {
	return s.Pending + s.Replaying + s.Abandoned
}

// Result is what every write-capable service method resolves to.
type Result struct {
	Success bool            `json:"success"`
	Queued  bool            `json:"queued,omitempty"`
	Body    json.RawMessage `json:"-"`
}

// QueuedResult is the synthetic result returned for a write deferred while offline.
func QueuedResult() Result {
	return Result{Success: true, Queued: true}
}
