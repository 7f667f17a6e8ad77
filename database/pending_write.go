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

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
)

const pendingWriteColumns = `seq, record_id, operation, enqueued_at, attempts, last_error, last_attempt_at, revision, needs_attention`

// UpsertPendingWrite inserts an entry for recordID or coalesces onto the
// existing one. A coalesced entry keeps its seq and enqueued_at, bumps its
// revision and drops the attention flag. CREATE is never downgraded.
func (d Datasource) UpsertPendingWrite(ctx context.Context, recordID string, op model.WriteOperation, at time.Time) (model.PendingWrite, error) {
	return upsertPendingWrite(ctx, d.Conn, recordID, op, at)
}

func upsertPendingWrite(ctx context.Context, conn execQueryer, recordID string, op model.WriteOperation, at time.Time) (model.PendingWrite, error) {
	row := conn.QueryRowContext(ctx, `
		INSERT INTO pending_writes (record_id, operation, enqueued_at)
		VALUES (?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			operation = CASE WHEN pending_writes.operation = 'CREATE' THEN 'CREATE' ELSE excluded.operation END,
			revision = pending_writes.revision + 1,
			needs_attention = 0
		RETURNING `+pendingWriteColumns,
		recordID, string(op), toNanos(at))

	entry, err := scanPendingWrite(row)
	if err != nil {
		return model.PendingWrite{}, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to enqueue pending write", err)
	}
	return entry, nil
}

func (d Datasource) GetPendingWrite(ctx context.Context, recordID string) (model.PendingWrite, bool, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+pendingWriteColumns+`
		FROM pending_writes
		WHERE record_id = ?
	`, recordID)

	entry, err := scanPendingWrite(row)
	if err == sql.ErrNoRows {
		return model.PendingWrite{}, false, nil
	}
	if err != nil {
		return model.PendingWrite{}, false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to retrieve pending write", err)
	}
	return entry, true, nil
}

func (d Datasource) ListPendingWrites(ctx context.Context) ([]model.PendingWrite, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+pendingWriteColumns+`
		FROM pending_writes
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to retrieve pending writes", err)
	}
	defer rows.Close()

	entries := []model.PendingWrite{}
	for rows.Next() {
		entry, err := scanPendingWrite(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to scan pending write", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Error occurred while iterating over pending writes", err)
	}
	return entries, nil
}

func (d Datasource) DeletePendingWrite(ctx context.Context, recordID string) error {
	_, err := d.Conn.ExecContext(ctx, `DELETE FROM pending_writes WHERE record_id = ?`, recordID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to acknowledge pending write", err)
	}
	return nil
}

// CompletePendingWrite removes the entry if its revision still matches the
// dispatched one. Otherwise the record was edited while in flight: the
// entry stays, now as an UPDATE with a clean attempt count, and false is
// returned.
func (d Datasource) CompletePendingWrite(ctx context.Context, recordID string, revision int64) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM pending_writes WHERE record_id = ? AND revision = ?`, recordID, revision)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to acknowledge pending write", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to acknowledge pending write", err)
	}

	if removed == 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE pending_writes
			SET operation = 'UPDATE', attempts = 0, last_error = '', needs_attention = 0
			WHERE record_id = ?
		`, recordID)
		if err != nil {
			return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to requeue pending write", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to commit transaction", err)
	}
	return removed > 0, nil
}

func (d Datasource) RecordPendingWriteFailure(ctx context.Context, recordID, lastError string, permanent bool, at time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE pending_writes
		SET attempts = attempts + 1,
			last_error = ?,
			last_attempt_at = ?,
			needs_attention = MAX(needs_attention, ?)
		WHERE record_id = ?
	`, lastError, toNanos(at), permanent, recordID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to record pending write failure", err)
	}
	return nil
}

func (d Datasource) ResetPendingWrite(ctx context.Context, recordID string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE pending_writes
		SET attempts = 0, last_error = '', needs_attention = 0
		WHERE record_id = ?
	`, recordID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to reset pending write", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "No pending write for this inspection", nil)
	}
	return nil
}

func scanPendingWrite(row rowScanner) (model.PendingWrite, error) {
	var (
		entry                   model.PendingWrite
		operation               string
		enqueuedAt, lastAttempt int64
	)
	err := row.Scan(&entry.Seq, &entry.RecordID, &operation, &enqueuedAt, &entry.Attempts,
		&entry.LastError, &lastAttempt, &entry.Revision, &entry.NeedsAttention)
	if err != nil {
		return model.PendingWrite{}, err
	}
	entry.Operation = model.WriteOperation(operation)
	entry.EnqueuedAt = fromNanos(enqueuedAt)
	if lastAttempt != 0 {
		t := fromNanos(lastAttempt)
		entry.LastAttemptAt = &t
	}
	return entry, nil
}
