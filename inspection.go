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
	"fmt"
	"sort"
	"time"

	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
	"github.com/sirupsen/logrus"
)

// CreateInspection stores a new inspection and queues it for delivery. The
// caller may supply the id (apps creating records offline do); otherwise one
// is assigned. An empty address is resolved from the coordinates.
func (c *Canopy) CreateInspection(ctx context.Context, rec *model.Inspection) (*model.Inspection, error) {
	if rec.InspectionID == "" {
		rec.InspectionID = model.GenerateUUIDWithSuffix("insp")
	} else {
		_, found, err := c.datasource.GetInspection(ctx, rec.InspectionID)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inspection %s already exists", rec.InspectionID), nil)
		}
	}

	if rec.Status == "" {
		rec.Status = model.StatusPending
	}
	if !rec.Status.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Invalid status %q", rec.Status), nil)
	}

	now := c.now().UTC()
	if rec.CreatedAt.IsZero() || rec.CreatedAt.After(now) {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Synced = false
	rec.RemoteID = ""
	rec.SyncState = model.SyncStateUnsynced
	if rec.Images == nil {
		rec.Images = []string{}
	}
	if rec.Location.Address == "" {
		rec.Location.Address = c.addresses.Resolve(ctx, rec.Location.Latitude, rec.Location.Longitude)
	}

	if _, err := c.queue.Store(ctx, rec, model.OperationCreate); err != nil {
		return nil, err
	}

	logrus.WithField("record_id", rec.InspectionID).Debug("inspection created")
	c.kick()
	return rec, nil
}

func (c *Canopy) GetInspection(ctx context.Context, id string) (*model.Inspection, error) {
	rec, found, err := c.datasource.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Inspection with ID '%s' not found", id), nil)
	}
	return &rec, nil
}

// ListInspections returns inspections newest first. An empty status lists
// every inspection.
func (c *Canopy) ListInspections(ctx context.Context, status model.InspectionStatus) ([]model.Inspection, error) {
	var (
		records []model.Inspection
		err     error
	)
	if status == "" {
		records, err = c.datasource.ListInspections(ctx)
	} else {
		if !status.Valid() {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Invalid status %q", status), nil)
		}
		records, err = c.datasource.ListInspectionsByStatus(ctx, status)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// UpdateInspectionStatus moves an inspection to status. Setting the status
// it already has changes nothing and queues nothing.
func (c *Canopy) UpdateInspectionStatus(ctx context.Context, id string, status model.InspectionStatus) (*model.Inspection, error) {
	if !status.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Invalid status %q", status), nil)
	}
	return c.mutate(ctx, id, func(rec *model.Inspection) bool {
		if rec.Status == status {
			return false
		}
		rec.Status = status
		return true
	})
}

// UpdateInspection applies a detail edit. A new location without an address
// has its address resolved first.
func (c *Canopy) UpdateInspection(ctx context.Context, id string, patch model.InspectionPatch) (*model.Inspection, error) {
	if patch.Location != nil && patch.Location.Address == "" {
		loc := *patch.Location
		loc.Address = c.addresses.Resolve(ctx, loc.Latitude, loc.Longitude)
		patch.Location = &loc
	}
	return c.mutate(ctx, id, patch.Apply)
}

// DeleteInspection removes an inspection from this device only. A pending
// write left behind is dropped by the next sync pass.
func (c *Canopy) DeleteInspection(ctx context.Context, id string) error {
	deleted, err := c.datasource.DeleteInspection(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Inspection with ID '%s' not found", id), nil)
	}
	return nil
}

func (c *Canopy) mutate(ctx context.Context, id string, change func(*model.Inspection) bool) (*model.Inspection, error) {
	rec, err := c.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !change(rec) {
		return rec, nil
	}

	rec.UpdatedAt = c.nextVersion(rec.UpdatedAt)
	rec.Synced = false
	rec.SyncState = model.SyncStateUnsynced

	applied, err := c.queue.Store(ctx, rec, model.OperationUpdate)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inspection %s was changed concurrently", id), nil)
	}

	c.kick()
	return rec, nil
}

// nextVersion returns an updated_at strictly after prev so every edit is
// distinguishable from the version a sync pass dispatched.
func (c *Canopy) nextVersion(prev time.Time) time.Time {
	now := c.now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
