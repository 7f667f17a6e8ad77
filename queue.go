/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package canopy

import (
	"context"
	"time"

	"github.com/canopyfield/canopy/database"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
)

// PendingWriteQueue is the durable list of records that still have to reach
// the remote system. Entries reference records by id; the current record is
// re-read at dispatch time.
type PendingWriteQueue struct {
	datasource database.IDataSource
	threshold  int
	now        func() time.Time
}

// NewPendingWriteQueue returns a queue over datasource. Entries whose attempt
// count reaches threshold are reported as needing attention.
func NewPendingWriteQueue(datasource database.IDataSource, threshold int) *PendingWriteQueue {
	if threshold <= 0 {
		threshold = 5
	}
	return &PendingWriteQueue{datasource: datasource, threshold: threshold, now: time.Now}
}

// Enqueue adds an entry for recordID or coalesces onto the outstanding one.
func (q *PendingWriteQueue) Enqueue(ctx context.Context, recordID string, op model.WriteOperation) (model.PendingWrite, error) {
	return q.datasource.UpsertPendingWrite(ctx, recordID, op, q.now().UTC())
}

// Store saves a local edit of rec and queues it in one transaction. It
// reports false, queueing nothing, when the stored row is newer than rec.
func (q *PendingWriteQueue) Store(ctx context.Context, rec *model.Inspection, op model.WriteOperation) (bool, error) {
	applied, _, err := q.datasource.PutInspectionAndEnqueue(ctx, rec, op, q.now().UTC())
	return applied, err
}

// DequeueAll returns a FIFO snapshot of the queue. Nothing is removed.
func (q *PendingWriteQueue) DequeueAll(ctx context.Context) ([]model.PendingWrite, error) {
	return q.datasource.ListPendingWrites(ctx)
}

// Acknowledge removes the entry for recordID unconditionally.
func (q *PendingWriteQueue) Acknowledge(ctx context.Context, recordID string) error {
	return q.datasource.DeletePendingWrite(ctx, recordID)
}

// Complete acknowledges a delivered entry unless the record was edited after
// the entry was snapshotted, in which case the entry stays for the next pass
// and false is returned.
func (q *PendingWriteQueue) Complete(ctx context.Context, entry model.PendingWrite) (bool, error) {
	return q.datasource.CompletePendingWrite(ctx, entry.RecordID, entry.Revision)
}

// MarkFailed records a failed delivery and returns the updated entry.
// Permanent rejections also raise the attention flag.
func (q *PendingWriteQueue) MarkFailed(ctx context.Context, recordID string, cause error) (model.PendingWrite, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := q.datasource.RecordPendingWriteFailure(ctx, recordID, msg, apierror.IsPermanent(cause), q.now().UTC())
	if err != nil {
		return model.PendingWrite{}, err
	}
	entry, found, err := q.datasource.GetPendingWrite(ctx, recordID)
	if err != nil {
		return model.PendingWrite{}, err
	}
	if !found {
		return model.PendingWrite{}, apierror.NewAPIError(apierror.ErrNotFound, "No pending write for this inspection", nil)
	}
	return entry, nil
}

// NeedsAttention reports whether entry should be surfaced to the user rather
// than retried automatically.
func (q *PendingWriteQueue) NeedsAttention(entry model.PendingWrite) bool {
	return entry.NeedsAttention || entry.Attempts >= q.threshold
}

// Threshold returns the attempt count at which an entry needs attention.
func (q *PendingWriteQueue) Threshold() int {
	return q.threshold
}

// Pending summarizes the queue for display.
func (q *PendingWriteQueue) Pending(ctx context.Context) (model.PendingWriteSummary, error) {
	entries, err := q.datasource.ListPendingWrites(ctx)
	if err != nil {
		return model.PendingWriteSummary{}, err
	}
	summary := model.PendingWriteSummary{Total: len(entries), Entries: entries}
	for i := range entries {
		if q.NeedsAttention(entries[i]) {
			summary.NeedsAttention++
		}
	}
	return summary, nil
}

// Requeue clears the attempt count and attention flag so automatic passes
// pick the entry up again.
func (q *PendingWriteQueue) Requeue(ctx context.Context, recordID string) (model.PendingWrite, error) {
	if err := q.datasource.ResetPendingWrite(ctx, recordID); err != nil {
		return model.PendingWrite{}, err
	}
	entry, _, err := q.datasource.GetPendingWrite(ctx, recordID)
	return entry, err
}

// PendingWrites summarizes undelivered writes for display.
func (c *Canopy) PendingWrites(ctx context.Context) (model.PendingWriteSummary, error) {
	return c.queue.Pending(ctx)
}

// RequeuePendingWrite clears the attention state of a record's pending write
// and schedules a pass.
func (c *Canopy) RequeuePendingWrite(ctx context.Context, recordID string) (model.PendingWrite, error) {
	entry, err := c.queue.Requeue(ctx, recordID)
	if err != nil {
		return model.PendingWrite{}, err
	}
	c.kick()
	return entry, nil
}
