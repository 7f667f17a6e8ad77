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
	"time"

	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/database"
	"github.com/canopyfield/canopy/internal/cache"
	redlock "github.com/canopyfield/canopy/internal/lock"
	"github.com/canopyfield/canopy/internal/notification"
	"github.com/canopyfield/canopy/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const syncLockKey = "canopy:sync-lock"

// RemoteAdapter is the system of record inspections are synchronized to.
// Create must be idempotent for a retried create of the same inspection id.
type RemoteAdapter interface {
	Create(ctx context.Context, rec model.Inspection) (string, error)
	Update(ctx context.Context, remoteID string, rec model.Inspection) error
	List(ctx context.Context) ([]model.Inspection, error)
}

// Geocoder turns a coordinate into a human readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// ImageUploader stores an image and returns a URL it can be fetched from.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, fileName string) (string, error)
}

// EventPublisher announces sync events to outside listeners.
type EventPublisher interface {
	Publish(event string, data interface{}) error
}

// Canopy is the inspection service. Every read and write from the app goes
// through it; it persists locally first and leaves delivery to the
// coordinator.
type Canopy struct {
	datasource   database.IDataSource
	queue        *PendingWriteQueue
	addresses    *AddressCache
	coordinator  *Coordinator
	connectivity *Monitor
	webhooks     *WebhookQueue
	redis        redis.UniversalClient
	trigger      func(model.SyncReason)
	now          func() time.Time
}

// Options carries the collaborators a Canopy instance talks to. Any of them
// may be left nil; the service then runs without that capability.
type Options struct {
	Remote       RemoteAdapter
	Geocoder     Geocoder
	Uploader     ImageUploader
	Redis        redis.UniversalClient
	Events       EventPublisher
	Connectivity *Monitor
}

// NewCanopy initializes the service over db using the loaded configuration.
func NewCanopy(db database.IDataSource, opts Options) (*Canopy, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	monitor := opts.Connectivity
	if monitor == nil {
		monitor = NewMonitor(!configuration.Sync.StartOffline)
	}

	ttl := time.Duration(configuration.Address.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = config.DEFAULT_ADDRESS_TTL_HOURS * time.Hour
	}
	memoSize := configuration.Address.MemoSize
	if memoSize <= 0 {
		memoSize = 10000
	}
	memo := cache.NewCache(opts.Redis, memoSize, ttl)

	c := &Canopy{
		datasource:   db,
		connectivity: monitor,
		redis:        opts.Redis,
		now:          time.Now,
	}

	events := opts.Events
	if events == nil && configuration.Redis.Dns != "" && configuration.Notification.Webhook.Url != "" {
		webhooks, err := NewWebhookQueue(configuration)
		if err != nil {
			return nil, err
		}
		c.webhooks = webhooks
		events = webhooks
	}
	if events != nil {
		notification.RegisterWebhookSender(events.Publish)
	}

	var locker *redlock.Locker
	if opts.Redis != nil {
		locker = redlock.NewLocker(opts.Redis, syncLockKey, model.GenerateUUIDWithSuffix("agent"))
	}

	c.queue = NewPendingWriteQueue(db, configuration.Sync.AttentionThreshold)
	c.addresses = NewAddressCache(db, memo, opts.Geocoder, monitor, ttl, configuration.Address.Precision)
	c.coordinator = NewCoordinator(db, c.queue, c.addresses, monitor, opts.Remote, opts.Uploader, events, locker,
		time.Duration(configuration.Sync.LockTTLSec)*time.Second)
	return c, nil
}

func (c *Canopy) Queue() *PendingWriteQueue {
	return c.queue
}

func (c *Canopy) Addresses() *AddressCache {
	return c.addresses
}

func (c *Canopy) Coordinator() *Coordinator {
	return c.coordinator
}

func (c *Canopy) Connectivity() *Monitor {
	return c.connectivity
}

// RemoteConfigured reports whether sync passes have somewhere to deliver to.
func (c *Canopy) RemoteConfigured() bool {
	return c.coordinator.remote != nil
}

// SetSyncTrigger installs the function called after every local write while
// online. The sync agent registers itself here.
func (c *Canopy) SetSyncTrigger(trigger func(model.SyncReason)) {
	c.trigger = trigger
}

func (c *Canopy) kick() {
	if c.trigger == nil || !c.connectivity.Online() {
		return
	}
	c.trigger(model.SyncReasonWrite)
}

// Sync runs a pass now on behalf of the caller.
func (c *Canopy) Sync(ctx context.Context, reason model.SyncReason) (model.SyncSummary, error) {
	return c.coordinator.Sync(ctx, reason)
}

// PullRemote merges the remote record list into the local store.
func (c *Canopy) PullRemote(ctx context.Context) (model.PullSummary, error) {
	return c.coordinator.PullRemote(ctx)
}

// SetOnline records a connectivity report from the app.
func (c *Canopy) SetOnline(online bool) {
	c.connectivity.Set(online)
}

// Close releases the service's own handles. The datasource and Redis client
// belong to the caller.
func (c *Canopy) Close() error {
	if c.webhooks == nil {
		return nil
	}
	if err := c.webhooks.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close webhook queue")
		return err
	}
	return nil
}
