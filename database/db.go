package database

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"time"

	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/internal/apierror"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

const dialect = "sqlite3"

type Datasource struct {
	Conn *sql.DB
}

// NewDataSource opens the local store named in the configuration, applies
// pending migrations and resets rows a previous process left mid-sync.
func NewDataSource(configuration *config.Configuration) (*Datasource, error) {
	con, err := ConnectDB(configuration.DataSource.Dns)
	if err != nil {
		return nil, err
	}
	ds := &Datasource{Conn: con}

	reset, err := ds.ResetSyncing(context.Background())
	if err != nil {
		_ = con.Close()
		return nil, err
	}
	if reset > 0 {
		logrus.WithField("records", reset).Warn("reset inspections left in syncing state")
	}
	return ds, nil
}

// ConnectDB opens the SQLite file at dns and migrates it up. The pool is
// limited to one connection so writes are serialized and in-memory
// databases survive for the life of the handle.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open(dialect, withPragmas(dns))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to open local store", errors.Wrap(err, "open local store"))
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		logrus.Errorf("database connection error: %v", err)
		_ = db.Close()
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to connect to local store", errors.Wrap(err, "ping local store"))
	}

	if _, err = Migrate(db, migrate.Up); err != nil {
		_ = db.Close()
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to migrate local store", err)
	}
	return db, nil
}

// Migrate applies the embedded migrations in the given direction and
// returns how many ran.
func Migrate(db *sql.DB, direction migrate.MigrationDirection) (int, error) {
	migrations := migrate.EmbedFileSystemMigrationSource{
		FileSystem: SQLFiles,
		Root:       "sql",
	}
	n, err := migrate.Exec(db, dialect, migrations, direction)
	if err != nil {
		return n, errors.Wrap(err, "migrate local store")
	}
	return n, nil
}

func (d Datasource) Close() error {
	return d.Conn.Close()
}

func withPragmas(dns string) string {
	params := "_busy_timeout=5000&_foreign_keys=on"
	if !strings.Contains(dns, ":memory:") && !strings.Contains(dns, "mode=memory") {
		params += "&_journal_mode=WAL"
	}
	if strings.Contains(dns, "?") {
		return dns + "&" + params
	}
	return dns + "?" + params
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
