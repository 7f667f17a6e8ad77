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
	"encoding/json"
	"time"

	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
)

const inspectionColumns = `inspection_id, title, details, status, address, latitude, longitude, images,
		scheduled_date, created_at, updated_at, inspector_id, inspector_name, community_board,
		synced, remote_id, sync_state, meta_data`

// PutInspection upserts rec in a single statement. A stored row with a newer
// updated_at wins and the call reports applied=false. Inspector attribution
// and created_at are kept from the first write, and an empty remote id
// never clears a known one.
func (d Datasource) PutInspection(ctx context.Context, rec *model.Inspection) (bool, error) {
	return putInspection(ctx, d.Conn, rec)
}

// PutInspectionAndEnqueue stores rec and queues its pending write in one
// transaction, so a record is never left unsynced without a queue entry.
// When the stored row is newer nothing is written and applied is false.
func (d Datasource) PutInspectionAndEnqueue(ctx context.Context, rec *model.Inspection, op model.WriteOperation, at time.Time) (bool, model.PendingWrite, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, model.PendingWrite{}, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	applied, err := putInspection(ctx, tx, rec)
	if err != nil || !applied {
		return false, model.PendingWrite{}, err
	}
	entry, err := upsertPendingWrite(ctx, tx, rec.InspectionID, op, at)
	if err != nil {
		return false, model.PendingWrite{}, err
	}

	if err = tx.Commit(); err != nil {
		return false, model.PendingWrite{}, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to commit transaction", err)
	}
	return true, entry, nil
}

func putInspection(ctx context.Context, conn execQueryer, rec *model.Inspection) (bool, error) {
	imagesJSON, err := json.Marshal(rec.Images)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal images", err)
	}
	metaDataJSON, err := json.Marshal(rec.MetaData)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	syncState := rec.SyncState
	if syncState == "" {
		syncState = model.SyncStateUnsynced
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO inspections (`+inspectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(inspection_id) DO UPDATE SET
			title = excluded.title,
			details = excluded.details,
			status = excluded.status,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			images = excluded.images,
			scheduled_date = excluded.scheduled_date,
			updated_at = excluded.updated_at,
			community_board = excluded.community_board,
			synced = excluded.synced,
			remote_id = CASE WHEN excluded.remote_id != '' THEN excluded.remote_id ELSE inspections.remote_id END,
			sync_state = excluded.sync_state,
			meta_data = excluded.meta_data
		WHERE excluded.updated_at >= inspections.updated_at
	`, rec.InspectionID, rec.Title, rec.Details, string(rec.Status), rec.Location.Address,
		rec.Location.Latitude, rec.Location.Longitude, string(imagesJSON), toNanos(rec.ScheduledDate),
		toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt), rec.Inspector.ID, rec.Inspector.Name,
		rec.CommunityBoard, rec.Synced, rec.RemoteID, string(syncState), string(metaDataJSON))
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to save inspection", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to save inspection", err)
	}
	return affected > 0, nil
}

func (d Datasource) GetInspection(ctx context.Context, id string) (model.Inspection, bool, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+inspectionColumns+`
		FROM inspections
		WHERE inspection_id = ?
	`, id)

	rec, err := scanInspection(row)
	if err == sql.ErrNoRows {
		return model.Inspection{}, false, nil
	}
	if err != nil {
		return model.Inspection{}, false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to retrieve inspection", err)
	}
	return rec, true, nil
}

func (d Datasource) ListInspections(ctx context.Context) ([]model.Inspection, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+inspectionColumns+`
		FROM inspections
		ORDER BY id
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to retrieve inspections", err)
	}
	return collectInspections(rows)
}

func (d Datasource) ListInspectionsByStatus(ctx context.Context, status model.InspectionStatus) ([]model.Inspection, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+inspectionColumns+`
		FROM inspections
		WHERE status = ?
		ORDER BY id
	`, string(status))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to retrieve inspections", err)
	}
	return collectInspections(rows)
}

func (d Datasource) DeleteInspection(ctx context.Context, id string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `DELETE FROM inspections WHERE inspection_id = ?`, id)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to delete inspection", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to delete inspection", err)
	}
	return affected > 0, nil
}

func (d Datasource) SetSyncState(ctx context.Context, id string, state model.SyncState) error {
	_, err := d.Conn.ExecContext(ctx, `UPDATE inspections SET sync_state = ? WHERE inspection_id = ?`, string(state), id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to update sync state", err)
	}
	return nil
}

// MarkSynced records remoteID and, if the stored row still carries the
// dispatched version, flags it synced. It reports whether the row is now
// synced; a row edited during dispatch stays unsynced.
func (d Datasource) MarkSynced(ctx context.Context, id, remoteID string, version time.Time) (bool, error) {
	v := toNanos(version)
	var synced bool
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE inspections
		SET remote_id = ?,
			synced = CASE WHEN updated_at = ? THEN 1 ELSE 0 END,
			sync_state = CASE WHEN updated_at = ? THEN 'synced' ELSE 'unsynced' END
		WHERE inspection_id = ?
		RETURNING synced
	`, remoteID, v, v, id).Scan(&synced)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to mark inspection synced", err)
	}
	return synced, nil
}

// ReplaceImages swaps the image list for uploaded references without bumping
// updated_at. It is a no-op when the row changed after version.
func (d Datasource) ReplaceImages(ctx context.Context, id string, images []string, version time.Time) (bool, error) {
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal images", err)
	}
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE inspections SET images = ? WHERE inspection_id = ? AND updated_at = ?
	`, string(imagesJSON), id, toNanos(version))
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to update images", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to update images", err)
	}
	return affected > 0, nil
}

func (d Datasource) ResetSyncing(ctx context.Context) (int64, error) {
	res, err := d.Conn.ExecContext(ctx, `UPDATE inspections SET sync_state = 'unsynced' WHERE sync_state = 'syncing'`)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to reset sync state", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// execQueryer is satisfied by both *sql.DB and *sql.Tx.
type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanInspection(row rowScanner) (model.Inspection, error) {
	var (
		rec                                 model.Inspection
		status, syncState                   string
		imagesJSON, metaDataJSON            string
		scheduledDate, createdAt, updatedAt int64
	)
	err := row.Scan(&rec.InspectionID, &rec.Title, &rec.Details, &status, &rec.Location.Address,
		&rec.Location.Latitude, &rec.Location.Longitude, &imagesJSON, &scheduledDate, &createdAt,
		&updatedAt, &rec.Inspector.ID, &rec.Inspector.Name, &rec.CommunityBoard, &rec.Synced,
		&rec.RemoteID, &syncState, &metaDataJSON)
	if err != nil {
		return model.Inspection{}, err
	}

	rec.Status = model.InspectionStatus(status)
	rec.SyncState = model.SyncState(syncState)
	rec.ScheduledDate = fromNanos(scheduledDate)
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)

	if err = json.Unmarshal([]byte(imagesJSON), &rec.Images); err != nil {
		return model.Inspection{}, err
	}
	if err = json.Unmarshal([]byte(metaDataJSON), &rec.MetaData); err != nil {
		return model.Inspection{}, err
	}
	return rec, nil
}

func collectInspections(rows *sql.Rows) ([]model.Inspection, error) {
	defer rows.Close()

	inspections := []model.Inspection{}
	for rows.Next() {
		rec, err := scanInspection(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to scan inspection data", err)
		}
		inspections = append(inspections, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Error occurred while iterating over inspections", err)
	}
	return inspections, nil
}
