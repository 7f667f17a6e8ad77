package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutInspection_RoundTrip(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	applied, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)
	assert.True(t, applied)

	got, found, err := ds.GetInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)
}

func TestPutInspection_Idempotent(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)
	_, err = ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	all, err := ds.ListInspections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, rec, all[0])
}

func TestPutInspection_LastWriteWins(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	newer := fakeInspection()
	newer.Status = model.StatusCompleted
	_, err := ds.PutInspection(ctx, &newer)
	require.NoError(t, err)

	older := newer
	older.Status = model.StatusInProgress
	older.UpdatedAt = newer.UpdatedAt.Add(-time.Minute)
	applied, err := ds.PutInspection(ctx, &older)
	require.NoError(t, err)
	assert.False(t, applied)

	got, _, err := ds.GetInspection(ctx, newer.InspectionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestPutInspection_KeepsImmutableFields(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	rec.RemoteID = "R1"
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	edit := rec
	edit.Inspector = model.Inspector{ID: "someone-else", Name: "Someone Else"}
	edit.RemoteID = ""
	edit.UpdatedAt = rec.UpdatedAt.Add(time.Second)
	_, err = ds.PutInspection(ctx, &edit)
	require.NoError(t, err)

	got, _, err := ds.GetInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.Equal(t, rec.Inspector, got.Inspector)
	assert.Equal(t, "R1", got.RemoteID)
	assert.Equal(t, edit.UpdatedAt, got.UpdatedAt)
}

func TestGetInspection_NotFound(t *testing.T) {
	ds := newTestDatasource(t)

	got, found, err := ds.GetInspection(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, model.Inspection{}, got)
}

func TestListInspectionsByStatus(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	a := fakeInspection()
	b := fakeInspection()
	b.Status = model.StatusCompleted
	for _, rec := range []*model.Inspection{&a, &b} {
		_, err := ds.PutInspection(ctx, rec)
		require.NoError(t, err)
	}

	completed, err := ds.ListInspectionsByStatus(ctx, model.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, b.InspectionID, completed[0].InspectionID)
}

func TestDeleteInspection(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	deleted, err := ds.DeleteInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = ds.DeleteInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMarkSynced(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	synced, err := ds.MarkSynced(ctx, rec.InspectionID, "R1", rec.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, synced)

	got, _, err := ds.GetInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, "R1", got.RemoteID)
	assert.Equal(t, model.SyncStateSynced, got.SyncState)
}

func TestMarkSynced_StaleVersion(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	dispatched := rec.UpdatedAt
	rec.UpdatedAt = dispatched.Add(time.Second)
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	synced, err := ds.MarkSynced(ctx, rec.InspectionID, "R1", dispatched)
	require.NoError(t, err)
	assert.False(t, synced)

	got, _, err := ds.GetInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Equal(t, "R1", got.RemoteID)
	assert.Equal(t, model.SyncStateUnsynced, got.SyncState)
}

func TestMarkSynced_MissingRecord(t *testing.T) {
	ds := newTestDatasource(t)

	synced, err := ds.MarkSynced(context.Background(), "gone", "R1", time.Now())
	assert.NoError(t, err)
	assert.False(t, synced)
}

func TestReplaceImages(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	urls := []string{"https://cdn.example.com/a.jpg"}
	replaced, err := ds.ReplaceImages(ctx, rec.InspectionID, urls, rec.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, replaced)

	replaced, err = ds.ReplaceImages(ctx, rec.InspectionID, []string{"https://other"}, rec.UpdatedAt.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, replaced)

	got, _, err := ds.GetInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.Equal(t, urls, got.Images)
	assert.Equal(t, rec.UpdatedAt, got.UpdatedAt)
}

func TestPutInspection_StorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	rec := fakeInspection()

	mock.ExpectExec("INSERT INTO inspections").
		WillReturnError(errors.New("database or disk is full"))

	applied, err := ds.PutInspection(context.Background(), &rec)
	assert.False(t, applied)
	code, ok := apierror.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrStorageUnavailable, code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInspection_StorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM inspections").
		WithArgs("insp_1").
		WillReturnError(errors.New("disk I/O error"))

	_, found, err := ds.GetInspection(context.Background(), "insp_1")
	assert.False(t, found)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutInspectionAndEnqueue(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	applied, entry, err := ds.PutInspectionAndEnqueue(ctx, &rec, model.OperationCreate, rec.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, rec.InspectionID, entry.RecordID)
	assert.Equal(t, model.OperationCreate, entry.Operation)

	_, found, err := ds.GetInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = ds.GetPendingWrite(ctx, rec.InspectionID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPutInspectionAndEnqueue_StaleWriteQueuesNothing(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	older := rec
	older.Title = "older edit"
	older.UpdatedAt = rec.UpdatedAt.Add(-time.Minute)
	applied, _, err := ds.PutInspectionAndEnqueue(ctx, &older, model.OperationUpdate, rec.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, applied)

	entries, err := ds.ListPendingWrites(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutInspectionAndEnqueue_RollsBackWhenEnqueueFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	rec := fakeInspection()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inspections").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO pending_writes").
		WillReturnError(errors.New("no such table: pending_writes"))
	mock.ExpectRollback()

	applied, _, err := ds.PutInspectionAndEnqueue(context.Background(), &rec, model.OperationCreate, rec.UpdatedAt)
	assert.False(t, applied)
	code, ok := apierror.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrStorageUnavailable, code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
