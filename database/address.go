package database

import (
	"context"
	"database/sql"

	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
)

func (d Datasource) GetAddress(ctx context.Context, key string) (model.AddressEntry, bool, error) {
	var (
		entry      model.AddressEntry
		resolvedAt int64
	)
	err := d.Conn.QueryRowContext(ctx, `
		SELECT cache_key, latitude, longitude, address, resolved_at
		FROM address_cache
		WHERE cache_key = ?
	`, key).Scan(&entry.Key, &entry.Latitude, &entry.Longitude, &entry.Address, &resolvedAt)
	if err == sql.ErrNoRows {
		return model.AddressEntry{}, false, nil
	}
	if err != nil {
		return model.AddressEntry{}, false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to retrieve address", err)
	}
	entry.ResolvedAt = fromNanos(resolvedAt)
	return entry, true, nil
}

func (d Datasource) PutAddress(ctx context.Context, entry model.AddressEntry) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO address_cache (cache_key, latitude, longitude, address, resolved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			address = excluded.address,
			resolved_at = excluded.resolved_at
	`, entry.Key, entry.Latitude, entry.Longitude, entry.Address, toNanos(entry.ResolvedAt))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to save address", err)
	}
	return nil
}

// EnqueueAddressLookup queues a lookup once per key. A repeat only refreshes
// the last error.
func (d Datasource) EnqueueAddressLookup(ctx context.Context, lookup model.PendingAddressLookup) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO pending_address_lookups (cache_key, latitude, longitude, last_error, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET last_error = excluded.last_error
	`, lookup.Key, lookup.Latitude, lookup.Longitude, lookup.LastError, toNanos(lookup.EnqueuedAt))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to queue address lookup", err)
	}
	return nil
}

func (d Datasource) ListAddressLookups(ctx context.Context) ([]model.PendingAddressLookup, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT cache_key, latitude, longitude, attempts, last_error, enqueued_at
		FROM pending_address_lookups
		ORDER BY enqueued_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to retrieve address lookups", err)
	}
	defer rows.Close()

	lookups := []model.PendingAddressLookup{}
	for rows.Next() {
		var (
			lookup     model.PendingAddressLookup
			enqueuedAt int64
		)
		if err = rows.Scan(&lookup.Key, &lookup.Latitude, &lookup.Longitude, &lookup.Attempts, &lookup.LastError, &enqueuedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to scan address lookup", err)
		}
		lookup.EnqueuedAt = fromNanos(enqueuedAt)
		lookups = append(lookups, lookup)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Error occurred while iterating over address lookups", err)
	}
	return lookups, nil
}

func (d Datasource) DeleteAddressLookup(ctx context.Context, key string) error {
	_, err := d.Conn.ExecContext(ctx, `DELETE FROM pending_address_lookups WHERE cache_key = ?`, key)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to remove address lookup", err)
	}
	return nil
}

func (d Datasource) RecordAddressLookupFailure(ctx context.Context, key, lastError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE pending_address_lookups
		SET attempts = attempts + 1, last_error = ?
		WHERE cache_key = ?
	`, lastError, key)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to record address lookup failure", err)
	}
	return nil
}
