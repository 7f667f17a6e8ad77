package model

import "time"

type SyncReason string

const (
	SyncReasonStartup SyncReason = "startup"
	SyncReasonOnline  SyncReason = "online"
	SyncReasonManual  SyncReason = "manual"
	SyncReasonRetry   SyncReason = "retry"
	SyncReasonWrite   SyncReason = "write"
)

type SyncSummary struct {
	PassID            string     `json:"pass_id"`
	Reason            SyncReason `json:"reason"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        time.Time  `json:"finished_at"`
	Succeeded         int        `json:"succeeded"`
	Failed            int        `json:"failed"`
	Skipped           int        `json:"skipped"`
	NeedsAttention    int        `json:"needs_attention"`
	AddressesResolved int        `json:"addresses_resolved"`
	Offline           bool       `json:"offline"`
	Coalesced         bool       `json:"coalesced"`
}

// HasTransientFailures reports whether the pass left entries that a later
// automatic retry could deliver.
func (s SyncSummary) HasTransientFailures() bool {
	return s.Failed > s.NeedsAttention
}

type PullSummary struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	KeptLocal int `json:"kept_local"`
	Conflicts int `json:"conflicts"`
}

// WebhookEvent is the payload delivered to the configured webhook endpoint.
type WebhookEvent struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// SyncStatus is the snapshot the app polls to render its sync badge.
type SyncStatus struct {
	Online         bool         `json:"online"`
	Running        bool         `json:"running"`
	Pending        int          `json:"pending"`
	NeedsAttention int          `json:"needs_attention"`
	LastSummary    *SyncSummary `json:"last_summary,omitempty"`
}
