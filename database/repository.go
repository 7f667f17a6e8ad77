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
	"time"

	"github.com/canopyfield/canopy/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	inspection    // Local record store
	pendingWrite  // Pending write queue
	addressCache  // Address cache and pending lookups
	Close() error // Releases the underlying handle
}

// inspection defines methods for the local record store.
type inspection interface {
	PutInspection(ctx context.Context, rec *model.Inspection) (bool, error)                                                                      // Upserts by id, last write wins on updated_at
	PutInspectionAndEnqueue(ctx context.Context, rec *model.Inspection, op model.WriteOperation, at time.Time) (bool, model.PendingWrite, error) // Stores a local edit and its pending write atomically
	GetInspection(ctx context.Context, id string) (model.Inspection, bool, error)                                                                // Returns the record and whether it exists
	ListInspections(ctx context.Context) ([]model.Inspection, error)                                                                             // Returns every stored record
	ListInspectionsByStatus(ctx context.Context, status model.InspectionStatus) ([]model.Inspection, error)                                      // Returns records with the given status
	DeleteInspection(ctx context.Context, id string) (bool, error)                                                                               // Removes a record locally
	SetSyncState(ctx context.Context, id string, state model.SyncState) error                                                                    // Records the sync state without touching the payload
	MarkSynced(ctx context.Context, id, remoteID string, version time.Time) (bool, error)                                                        // Marks the dispatched version as acknowledged
	ReplaceImages(ctx context.Context, id string, images []string, version time.Time) (bool, error)                                              // Swaps inline images for uploaded URLs
	ResetSyncing(ctx context.Context) (int64, error)                                                                                             // Returns syncing rows to unsynced
}

// pendingWrite defines methods for the pending write queue.
type pendingWrite interface {
	UpsertPendingWrite(ctx context.Context, recordID string, op model.WriteOperation, at time.Time) (model.PendingWrite, error) // Adds or coalesces an entry
	GetPendingWrite(ctx context.Context, recordID string) (model.PendingWrite, bool, error)                                     // Returns the entry for a record
	ListPendingWrites(ctx context.Context) ([]model.PendingWrite, error)                                                        // Returns entries in FIFO order
	DeletePendingWrite(ctx context.Context, recordID string) error                                                              // Removes an entry
	CompletePendingWrite(ctx context.Context, recordID string, revision int64) (bool, error)                                    // Removes an entry unless it was coalesced since dispatch
	RecordPendingWriteFailure(ctx context.Context, recordID, lastError string, permanent bool, at time.Time) error              // Counts a failed attempt
	ResetPendingWrite(ctx context.Context, recordID string) error                                                               // Clears attempts and the attention flag
}

// addressCache defines methods for the address cache tables.
type addressCache interface {
	GetAddress(ctx context.Context, key string) (model.AddressEntry, bool, error)      // Returns a cached address regardless of age
	PutAddress(ctx context.Context, entry model.AddressEntry) error                    // Stores or refreshes an address
	EnqueueAddressLookup(ctx context.Context, lookup model.PendingAddressLookup) error // Queues a lookup once per key
	ListAddressLookups(ctx context.Context) ([]model.PendingAddressLookup, error)      // Returns queued lookups oldest first
	DeleteAddressLookup(ctx context.Context, key string) error                         // Removes a resolved lookup
	RecordAddressLookupFailure(ctx context.Context, key, lastError string) error       // Counts a failed lookup
}
