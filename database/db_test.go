package database

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatasource(t *testing.T) *Datasource {
	t.Helper()
	ds, err := NewDataSource(&config.Configuration{DataSource: config.DataSourceConfig{Dns: ":memory:"}})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ds.Close()
	})
	return ds
}

func fakeInspection() model.Inspection {
	now := time.Now().UTC()
	return model.Inspection{
		InspectionID: model.GenerateUUIDWithSuffix("insp"),
		Title:        gofakeit.Sentence(3),
		Details:      gofakeit.Paragraph(1, 2, 8, " "),
		Status:       model.StatusPending,
		Location: model.Location{
			Address:   gofakeit.Street(),
			Latitude:  gofakeit.Latitude(),
			Longitude: gofakeit.Longitude(),
		},
		Images:         []string{"data:image/jpeg;base64,/9j/4AAQ"},
		ScheduledDate:  now.Add(48 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
		Inspector:      model.Inspector{ID: gofakeit.UUID(), Name: gofakeit.Name()},
		CommunityBoard: "Manhattan CB 3",
		SyncState:      model.SyncStateUnsynced,
		MetaData:       map[string]interface{}{"species": "Quercus rubra"},
	}
}

func TestConnectDB_MigratesSchema(t *testing.T) {
	ds := newTestDatasource(t)

	for _, table := range []string{"inspections", "pending_writes", "address_cache", "pending_address_lookups"} {
		var name string
		err := ds.Conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}

	n, err := Migrate(ds.Conn, migrate.Up)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConnectDB_UnreachableStore(t *testing.T) {
	db, err := ConnectDB(t.TempDir() + "/missing/canopy.db")
	assert.Nil(t, db)
	code, ok := apierror.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrStorageUnavailable, code)
}

func TestResetSyncing(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()

	rec := fakeInspection()
	rec.SyncState = model.SyncStateSyncing
	_, err := ds.PutInspection(ctx, &rec)
	require.NoError(t, err)

	n, err := ds.ResetSyncing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, found, err := ds.GetInspection(ctx, rec.InspectionID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.SyncStateUnsynced, got.SyncState)
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, ":memory:?_busy_timeout=5000&_foreign_keys=on", withPragmas(":memory:"))
	assert.Equal(t, "canopy.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", withPragmas("canopy.db"))
	assert.Equal(t, "file:canopy.db?cache=shared&_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", withPragmas("file:canopy.db?cache=shared"))
}
