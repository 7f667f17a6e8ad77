package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/canopyfield/canopy/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertPendingWrite_Coalesces(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()
	first := time.Now().UTC()

	entry, err := ds.UpsertPendingWrite(ctx, "A1", model.OperationCreate, first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Revision)
	assert.Equal(t, model.OperationCreate, entry.Operation)

	again, err := ds.UpsertPendingWrite(ctx, "A1", model.OperationUpdate, first.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, entry.Seq, again.Seq)
	assert.Equal(t, int64(2), again.Revision)
	assert.Equal(t, model.OperationCreate, again.Operation)
	assert.Equal(t, first, again.EnqueuedAt)

	entries, err := ds.ListPendingWrites(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListPendingWrites_FIFO(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"B", "A", "C"} {
		_, err := ds.UpsertPendingWrite(ctx, id, model.OperationUpdate, now)
		require.NoError(t, err)
	}
	_, err := ds.UpsertPendingWrite(ctx, "B", model.OperationUpdate, now)
	require.NoError(t, err)

	entries, err := ds.ListPendingWrites(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{entries[0].RecordID, entries[1].RecordID, entries[2].RecordID})
}

func TestRecordPendingWriteFailure(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := ds.UpsertPendingWrite(ctx, "A1", model.OperationCreate, now)
	require.NoError(t, err)

	require.NoError(t, ds.RecordPendingWriteFailure(ctx, "A1", "timeout", false, now))
	require.NoError(t, ds.RecordPendingWriteFailure(ctx, "A1", "400 bad request", true, now))
	require.NoError(t, ds.RecordPendingWriteFailure(ctx, "A1", "timeout", false, now))

	entry, found, err := ds.GetPendingWrite(ctx, "A1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, "timeout", entry.LastError)
	assert.True(t, entry.NeedsAttention)
	require.NotNil(t, entry.LastAttemptAt)
	assert.Equal(t, now, *entry.LastAttemptAt)

	_, err = ds.UpsertPendingWrite(ctx, "A1", model.OperationUpdate, now)
	require.NoError(t, err)
	entry, _, err = ds.GetPendingWrite(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, entry.NeedsAttention)
	assert.Equal(t, 3, entry.Attempts)
}

func TestCompletePendingWrite(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry, err := ds.UpsertPendingWrite(ctx, "A1", model.OperationCreate, now)
	require.NoError(t, err)

	removed, err := ds.CompletePendingWrite(ctx, "A1", entry.Revision)
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err := ds.GetPendingWrite(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompletePendingWrite_EditedInFlight(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dispatched, err := ds.UpsertPendingWrite(ctx, "A1", model.OperationCreate, now)
	require.NoError(t, err)
	require.NoError(t, ds.RecordPendingWriteFailure(ctx, "A1", "timeout", false, now))
	_, err = ds.UpsertPendingWrite(ctx, "A1", model.OperationUpdate, now)
	require.NoError(t, err)

	removed, err := ds.CompletePendingWrite(ctx, "A1", dispatched.Revision)
	require.NoError(t, err)
	assert.False(t, removed)

	entry, found, err := ds.GetPendingWrite(ctx, "A1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.OperationUpdate, entry.Operation)
	assert.Equal(t, 0, entry.Attempts)
}

func TestResetPendingWrite(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := ds.UpsertPendingWrite(ctx, "A1", model.OperationCreate, now)
	require.NoError(t, err)
	require.NoError(t, ds.RecordPendingWriteFailure(ctx, "A1", "422", true, now))

	require.NoError(t, ds.ResetPendingWrite(ctx, "A1"))
	entry, _, err := ds.GetPendingWrite(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Attempts)
	assert.False(t, entry.NeedsAttention)

	assert.Error(t, ds.ResetPendingWrite(ctx, "missing"))
}

func TestCompletePendingWrite_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pending_writes").
		WithArgs("A1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE pending_writes").
		WithArgs("A1").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	removed, err := ds.CompletePendingWrite(context.Background(), "A1", 2)
	assert.False(t, removed)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
