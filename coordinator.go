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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/canopyfield/canopy/database"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/internal/blob"
	redlock "github.com/canopyfield/canopy/internal/lock"
	"github.com/canopyfield/canopy/internal/notification"
	"github.com/canopyfield/canopy/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("canopy.sync")

// Coordinator drives sync passes: it replays the pending write queue
// against the remote system and then drains queued address lookups. Only
// one pass runs at a time.
type Coordinator struct {
	datasource   database.IDataSource
	queue        *PendingWriteQueue
	addresses    *AddressCache
	connectivity ConnectivitySource
	remote       RemoteAdapter
	uploader     ImageUploader
	events       EventPublisher
	locker       *redlock.Locker
	lockTTL      time.Duration
	now          func() time.Time

	mu      sync.Mutex
	running bool
	last    *model.SyncSummary
}

// NewCoordinator wires a coordinator. uploader, events and locker may be nil.
func NewCoordinator(datasource database.IDataSource, queue *PendingWriteQueue, addresses *AddressCache, connectivity ConnectivitySource, remote RemoteAdapter, uploader ImageUploader, events EventPublisher, locker *redlock.Locker, lockTTL time.Duration) *Coordinator {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Coordinator{
		datasource:   datasource,
		queue:        queue,
		addresses:    addresses,
		connectivity: connectivity,
		remote:       remote,
		uploader:     uploader,
		events:       events,
		locker:       locker,
		lockTTL:      lockTTL,
		now:          time.Now,
	}
}

func (c *Coordinator) online() bool {
	return c.connectivity == nil || c.connectivity.Online()
}

func (c *Coordinator) tryStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *Coordinator) finish(summary *model.SyncSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	if summary != nil {
		s := *summary
		c.last = &s
	}
}

// Running reports whether a pass is in flight.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastSummary returns the summary of the most recent pass that did work.
func (c *Coordinator) LastSummary() (model.SyncSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return model.SyncSummary{}, false
	}
	return *c.last, true
}

// Sync runs one pass. Being offline or finding another pass in flight is
// not an error: the returned summary is flagged Offline or Coalesced and no
// remote calls are made.
func (c *Coordinator) Sync(ctx context.Context, reason model.SyncReason) (model.SyncSummary, error) {
	summary := model.SyncSummary{
		PassID:    model.GenerateUUIDWithSuffix("pass"),
		Reason:    reason,
		StartedAt: c.now().UTC(),
	}

	if !c.online() {
		summary.Offline = true
		summary.FinishedAt = c.now().UTC()
		return summary, nil
	}
	if c.remote == nil {
		return summary, apierror.NewAPIError(apierror.ErrRemoteUnavailable, "Remote system is not configured", nil)
	}

	if !c.tryStart() {
		summary.Coalesced = true
		summary.FinishedAt = c.now().UTC()
		return summary, nil
	}

	locked := false
	if c.locker != nil {
		err := c.locker.Lock(ctx, c.lockTTL)
		switch {
		case errors.Is(err, redlock.ErrLockHeld):
			c.finish(nil)
			summary.Coalesced = true
			summary.FinishedAt = c.now().UTC()
			return summary, nil
		case err != nil:
			logrus.WithError(err).Warn("sync lock unavailable, continuing with the local guard only")
		default:
			locked = true
			defer func() {
				if err := c.locker.Unlock(context.Background()); err != nil {
					logrus.WithError(err).Warn("failed to release sync lock")
				}
			}()
		}
	}

	ctx, span := tracer.Start(ctx, "Sync pass", trace.WithAttributes(
		attribute.String("pass_id", summary.PassID),
		attribute.String("reason", string(reason)),
	))
	defer span.End()

	entries, err := c.queue.DequeueAll(ctx)
	if err != nil {
		span.RecordError(err)
		summary.FinishedAt = c.now().UTC()
		c.finish(&summary)
		return summary, err
	}

	for _, entry := range entries {
		c.syncEntry(ctx, entry, reason, &summary)
		if locked {
			if err := c.locker.ExtendLock(ctx, c.lockTTL); err != nil {
				logrus.WithError(err).Warn("failed to extend sync lock")
			}
		}
	}

	resolved, err := c.addresses.DrainPending(ctx)
	if err != nil {
		logrus.WithError(err).Warn("address drain failed")
	}
	summary.AddressesResolved = resolved
	summary.FinishedAt = c.now().UTC()

	span.SetAttributes(
		attribute.Int("succeeded", summary.Succeeded),
		attribute.Int("failed", summary.Failed),
		attribute.Int("skipped", summary.Skipped),
	)
	logrus.WithFields(logrus.Fields{
		"pass_id":   summary.PassID,
		"reason":    reason,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"addresses": summary.AddressesResolved,
	}).Info("sync pass finished")

	c.finish(&summary)
	c.emit("sync.completed", summary)
	return summary, nil
}

func (c *Coordinator) syncEntry(ctx context.Context, entry model.PendingWrite, reason model.SyncReason, summary *model.SyncSummary) {
	ctx, span := tracer.Start(ctx, "Sync entry", trace.WithAttributes(
		attribute.String("record_id", entry.RecordID),
		attribute.String("operation", string(entry.Operation)),
		attribute.Int("attempts", entry.Attempts),
	))
	defer span.End()

	rec, found, err := c.datasource.GetInspection(ctx, entry.RecordID)
	if err != nil {
		c.fail(ctx, span, entry, err, summary)
		return
	}
	if !found {
		if err := c.queue.Acknowledge(ctx, entry.RecordID); err != nil {
			logrus.WithError(err).WithField("record_id", entry.RecordID).Warn("failed to drop pending write for deleted inspection")
		}
		span.AddEvent("record deleted locally")
		summary.Skipped++
		return
	}
	if entry.NeedsAttention && reason != model.SyncReasonManual {
		span.AddEvent("waiting for manual sync")
		summary.Skipped++
		return
	}

	if err := c.datasource.SetSyncState(ctx, rec.InspectionID, model.SyncStateSyncing); err != nil {
		logrus.WithError(err).WithField("record_id", rec.InspectionID).Warn("failed to mark inspection syncing")
	}

	version := rec.UpdatedAt
	remoteID, err := c.dispatch(ctx, &rec)
	if err != nil {
		c.fail(ctx, span, entry, err, summary)
		return
	}

	synced, err := c.datasource.MarkSynced(ctx, rec.InspectionID, remoteID, version)
	if err != nil {
		c.fail(ctx, span, entry, err, summary)
		return
	}
	completed, err := c.queue.Complete(ctx, entry)
	if err != nil {
		logrus.WithError(err).WithField("record_id", rec.InspectionID).Error("failed to acknowledge pending write")
	}
	if !completed {
		span.AddEvent("edited during dispatch, entry kept")
	}

	summary.Succeeded++
	if synced {
		rec.Synced = true
		rec.RemoteID = remoteID
		rec.SyncState = model.SyncStateSynced
		c.emit("inspection.synced", rec)
	}
}

// dispatch uploads inline images and sends rec to the remote system. The
// choice between create and update follows the remote id, not the queued
// operation, so a create whose acknowledgement was lost is not repeated.
func (c *Coordinator) dispatch(ctx context.Context, rec *model.Inspection) (string, error) {
	if err := c.uploadImages(ctx, rec); err != nil {
		return "", err
	}
	if rec.RemoteID == "" {
		return c.remote.Create(ctx, *rec)
	}
	return rec.RemoteID, c.remote.Update(ctx, rec.RemoteID, *rec)
}

func (c *Coordinator) uploadImages(ctx context.Context, rec *model.Inspection) error {
	if c.uploader == nil {
		return nil
	}

	changed := false
	for i, ref := range rec.Images {
		if model.IsUploadedImage(ref) {
			continue
		}
		data, ext, err := blob.DecodeImage(ref)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrRemoteRejected, fmt.Sprintf("Image %d is not a valid image payload", i), err)
		}
		url, err := c.uploader.UploadImage(ctx, data, fmt.Sprintf("%s-%d%s", rec.InspectionID, i, ext))
		if err != nil {
			return err
		}
		rec.Images[i] = url
		changed = true
	}

	if changed {
		if _, err := c.datasource.ReplaceImages(ctx, rec.InspectionID, rec.Images, rec.UpdatedAt); err != nil {
			logrus.WithError(err).WithField("record_id", rec.InspectionID).Warn("failed to persist uploaded image urls")
		}
	}
	return nil
}

func (c *Coordinator) fail(ctx context.Context, span trace.Span, entry model.PendingWrite, cause error, summary *model.SyncSummary) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	summary.Failed++

	logger := logrus.WithFields(logrus.Fields{
		"record_id": entry.RecordID,
		"permanent": apierror.IsPermanent(cause),
	})
	logger.WithError(cause).Warn("pending write failed")

	if err := c.datasource.SetSyncState(ctx, entry.RecordID, model.SyncStateUnsynced); err != nil {
		logger.WithError(err).Warn("failed to reset sync state")
	}

	updated, err := c.queue.MarkFailed(ctx, entry.RecordID, cause)
	if err != nil {
		logger.WithError(err).Error("failed to record pending write failure")
		return
	}
	if !c.queue.NeedsAttention(updated) {
		return
	}
	summary.NeedsAttention++
	if !c.queue.NeedsAttention(entry) {
		notification.NotifyAttention(updated)
	}
}

// PullRemote merges the remote record list into the local store. Records
// with undelivered local changes are kept as they are.
func (c *Coordinator) PullRemote(ctx context.Context) (model.PullSummary, error) {
	var summary model.PullSummary
	if c.remote == nil {
		return summary, apierror.NewAPIError(apierror.ErrRemoteUnavailable, "Remote system is not configured", nil)
	}
	if !c.online() {
		return summary, apierror.NewAPIError(apierror.ErrRemoteUnavailable, "Device is offline", nil)
	}

	ctx, span := tracer.Start(ctx, "Pull remote records")
	defer span.End()

	records, err := c.remote.List(ctx)
	if err != nil {
		span.RecordError(err)
		return summary, err
	}

	for i := range records {
		remote := records[i]
		if remote.InspectionID == "" {
			continue
		}
		remote.Synced = true
		remote.SyncState = model.SyncStateSynced

		local, found, err := c.datasource.GetInspection(ctx, remote.InspectionID)
		if err != nil {
			return summary, err
		}
		if !found {
			if _, err := c.datasource.PutInspection(ctx, &remote); err != nil {
				return summary, err
			}
			summary.Inserted++
			continue
		}

		_, pending, err := c.datasource.GetPendingWrite(ctx, remote.InspectionID)
		if err != nil {
			return summary, err
		}
		if pending {
			summary.KeptLocal++
			if remote.UpdatedAt.After(local.UpdatedAt) {
				summary.Conflicts++
				logrus.WithField("record_id", remote.InspectionID).Warn("remote copy is newer than an undelivered local edit, keeping local")
			}
			continue
		}

		if !remote.UpdatedAt.After(local.UpdatedAt) || sameRemoteContent(local, remote) {
			continue
		}
		merged := mergeRemote(local, remote)
		applied, err := c.datasource.PutInspection(ctx, &merged)
		if err != nil {
			return summary, err
		}
		if applied {
			summary.Updated++
		}
	}

	span.SetAttributes(attribute.Int("inserted", summary.Inserted), attribute.Int("updated", summary.Updated))
	return summary, nil
}

// sameRemoteContent reports whether remote carries nothing beyond what local
// already holds. The remote modification time is always later than the
// version this device dispatched, so an echo of our own write must be
// recognised by content.
func sameRemoteContent(local, remote model.Inspection) bool {
	if remote.RemoteID != "" && remote.RemoteID != local.RemoteID {
		return false
	}
	if remote.Title != local.Title || remote.Details != local.Details || remote.Status != local.Status ||
		remote.CommunityBoard != local.CommunityBoard || remote.Location != local.Location {
		return false
	}
	if !remote.ScheduledDate.Truncate(time.Second).Equal(local.ScheduledDate.Truncate(time.Second)) {
		return false
	}
	if len(remote.Images) != len(local.Images) {
		return false
	}
	for i := range remote.Images {
		if remote.Images[i] != local.Images[i] {
			return false
		}
	}
	return true
}

// mergeRemote applies a newer remote copy over local. Fields the remote
// system does not carry, or leaves blank, keep their local values.
func mergeRemote(local, remote model.Inspection) model.Inspection {
	merged := remote
	if merged.MetaData == nil {
		merged.MetaData = local.MetaData
	}
	if merged.Details == "" {
		merged.Details = local.Details
	}
	if merged.CommunityBoard == "" {
		merged.CommunityBoard = local.CommunityBoard
	}
	if merged.Location.Address == "" {
		merged.Location.Address = local.Location.Address
	}
	if merged.Location.Latitude == 0 && merged.Location.Longitude == 0 {
		merged.Location.Latitude = local.Location.Latitude
		merged.Location.Longitude = local.Location.Longitude
	}
	if len(merged.Images) == 0 {
		merged.Images = local.Images
	}
	if merged.ScheduledDate.IsZero() {
		merged.ScheduledDate = local.ScheduledDate
	}
	if merged.Inspector.ID == "" {
		merged.Inspector = local.Inspector
	}
	if merged.RemoteID == "" {
		merged.RemoteID = local.RemoteID
	}
	merged.CreatedAt = local.CreatedAt
	return merged
}

func (c *Coordinator) emit(event string, data interface{}) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(event, data); err != nil {
		logrus.WithError(err).WithField("event", event).Warn("failed to publish event")
	}
}

// SyncStatus reports connectivity, queue depth and the last pass.
func (c *Canopy) SyncStatus(ctx context.Context) (model.SyncStatus, error) {
	pending, err := c.queue.Pending(ctx)
	if err != nil {
		return model.SyncStatus{}, err
	}
	status := model.SyncStatus{
		Online:         c.connectivity.Online(),
		Running:        c.coordinator.Running(),
		Pending:        pending.Total,
		NeedsAttention: pending.NeedsAttention,
	}
	if last, ok := c.coordinator.LastSummary(); ok {
		status.LastSummary = &last
	}
	return status, nil
}
