package model

import "time"

type WriteOperation string

const (
	OperationCreate WriteOperation = "CREATE"
	OperationUpdate WriteOperation = "UPDATE"
)

// PendingWrite is the durable intent to propagate a record to the remote
// system. It references the record by id and never carries a copy of it.
type PendingWrite struct {
	Seq            int64          `json:"seq"`
	RecordID       string         `json:"record_id"`
	Operation      WriteOperation `json:"operation"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error,omitempty"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	Revision       int64          `json:"revision"`
	NeedsAttention bool           `json:"needs_attention"`
}

type PendingWriteSummary struct {
	Total          int            `json:"total"`
	NeedsAttention int            `json:"needs_attention"`
	Entries        []PendingWrite `json:"entries"`
}
