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
	"sync"
	"time"

	"github.com/canopyfield/canopy/database"
	"github.com/canopyfield/canopy/internal/cache"
	"github.com/canopyfield/canopy/model"
	"github.com/sirupsen/logrus"
)

const (
	addressMemoPrefix       = "address:"
	addressSubscriberBuffer = 16
)

// ConnectivitySource reports whether the device can currently reach the
// network.
type ConnectivitySource interface {
	Online() bool
}

// AddressCache memoizes reverse geocoding by quantized coordinate. Lookups
// that cannot be answered live are queued durably and replayed by
// DrainPending once the device is back online.
type AddressCache struct {
	datasource   database.IDataSource
	memo         cache.Cache
	geocoder     Geocoder
	connectivity ConnectivitySource
	ttl          time.Duration
	precision    int
	now          func() time.Time

	mu          sync.Mutex
	subscribers map[int]chan model.AddressUpdate
	nextID      int
}

// NewAddressCache builds the cache. geocoder may be nil, in which case only
// stored entries and the fallback are ever returned.
func NewAddressCache(datasource database.IDataSource, memo cache.Cache, geocoder Geocoder, connectivity ConnectivitySource, ttl time.Duration, precision int) *AddressCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if precision <= 0 {
		precision = 4
	}
	return &AddressCache{
		datasource:   datasource,
		memo:         memo,
		geocoder:     geocoder,
		connectivity: connectivity,
		ttl:          ttl,
		precision:    precision,
		now:          time.Now,
		subscribers:  make(map[int]chan model.AddressUpdate),
	}
}

// Key returns the cache key for a coordinate pair.
func (a *AddressCache) Key(lat, lon float64) string {
	return model.QuantizeCoordinates(lat, lon, a.precision)
}

func (a *AddressCache) online() bool {
	return a.connectivity == nil || a.connectivity.Online()
}

// Resolve returns a displayable address for the coordinate. It never fails:
// a fresh cached entry is served first, then a live lookup, then a stale
// entry (offline only), then the coordinate fallback.
func (a *AddressCache) Resolve(ctx context.Context, lat, lon float64) string {
	key := a.Key(lat, lon)
	now := a.now()

	var memoized model.AddressEntry
	if err := a.memo.Get(ctx, addressMemoPrefix+key, &memoized); err == nil && memoized.Fresh(now, a.ttl) {
		return memoized.Address
	}

	var stale *model.AddressEntry
	stored, found, err := a.datasource.GetAddress(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("address cache read failed")
	} else if found {
		if stored.Fresh(now, a.ttl) {
			a.remember(ctx, stored)
			return stored.Address
		}
		stale = &stored
	}

	if a.geocoder == nil {
		if stale != nil {
			return stale.Address
		}
		return model.FallbackAddress(lat, lon)
	}

	if !a.online() {
		a.enqueue(ctx, key, lat, lon, errors.New("offline"))
		if stale != nil {
			return stale.Address
		}
		return model.FallbackAddress(lat, lon)
	}

	address, err := a.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil || address == "" {
		if err == nil {
			err = errors.New("empty geocoding result")
		}
		logrus.WithError(err).WithField("key", key).Warn("reverse geocoding failed")
		a.enqueue(ctx, key, lat, lon, err)
		return model.FallbackAddress(lat, lon)
	}

	a.store(ctx, model.AddressEntry{Key: key, Latitude: lat, Longitude: lon, Address: address, ResolvedAt: now.UTC()})
	return address
}

// DrainPending retries every queued lookup. It does nothing while offline
// and returns how many lookups resolved.
func (a *AddressCache) DrainPending(ctx context.Context) (int, error) {
	if a.geocoder == nil || !a.online() {
		return 0, nil
	}

	lookups, err := a.datasource.ListAddressLookups(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, lookup := range lookups {
		address, err := a.geocoder.ReverseGeocode(ctx, lookup.Latitude, lookup.Longitude)
		if err != nil || address == "" {
			if err == nil {
				err = errors.New("empty geocoding result")
			}
			if ferr := a.datasource.RecordAddressLookupFailure(ctx, lookup.Key, err.Error()); ferr != nil {
				logrus.WithError(ferr).WithField("key", lookup.Key).Warn("failed to record address lookup failure")
			}
			continue
		}

		a.store(ctx, model.AddressEntry{
			Key:        lookup.Key,
			Latitude:   lookup.Latitude,
			Longitude:  lookup.Longitude,
			Address:    address,
			ResolvedAt: a.now().UTC(),
		})
		if err := a.datasource.DeleteAddressLookup(ctx, lookup.Key); err != nil {
			logrus.WithError(err).WithField("key", lookup.Key).Warn("failed to remove resolved address lookup")
		}
		resolved++
		a.publish(model.AddressUpdate{
			Key:       lookup.Key,
			Latitude:  lookup.Latitude,
			Longitude: lookup.Longitude,
			Address:   address,
		})
	}
	return resolved, nil
}

// PendingLookups returns the queued lookups oldest first.
func (a *AddressCache) PendingLookups(ctx context.Context) ([]model.PendingAddressLookup, error) {
	return a.datasource.ListAddressLookups(ctx)
}

// Subscribe registers for address updates produced by DrainPending. Updates
// are dropped for a subscriber whose buffer is full. The returned function
// unsubscribes and closes the channel.
func (a *AddressCache) Subscribe() (<-chan model.AddressUpdate, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	ch := make(chan model.AddressUpdate, addressSubscriberBuffer)
	a.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.subscribers, id)
			close(ch)
		})
	}
}

func (a *AddressCache) publish(update model.AddressUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, ch := range a.subscribers {
		select {
		case ch <- update:
		default:
			logrus.WithField("subscriber", id).Debug("address subscriber is full, dropping update")
		}
	}
}

func (a *AddressCache) store(ctx context.Context, entry model.AddressEntry) {
	if err := a.datasource.PutAddress(ctx, entry); err != nil {
		logrus.WithError(err).WithField("key", entry.Key).Warn("address cache write failed")
	}
	a.remember(ctx, entry)
}

func (a *AddressCache) remember(ctx context.Context, entry model.AddressEntry) {
	if err := a.memo.Set(ctx, addressMemoPrefix+entry.Key, entry, a.ttl); err != nil {
		logrus.WithError(err).WithField("key", entry.Key).Debug("address memo write failed")
	}
}

func (a *AddressCache) enqueue(ctx context.Context, key string, lat, lon float64, cause error) {
	lookup := model.PendingAddressLookup{
		Key:        key,
		Latitude:   lat,
		Longitude:  lon,
		LastError:  cause.Error(),
		EnqueuedAt: a.now().UTC(),
	}
	if err := a.datasource.EnqueueAddressLookup(ctx, lookup); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("failed to queue address lookup")
	}
}

// ResolveAddress returns a displayable address for a coordinate.
func (c *Canopy) ResolveAddress(ctx context.Context, lat, lon float64) model.AddressEntry {
	return model.AddressEntry{
		Key:        c.addresses.Key(lat, lon),
		Latitude:   lat,
		Longitude:  lon,
		Address:    c.addresses.Resolve(ctx, lat, lon),
		ResolvedAt: c.now().UTC(),
	}
}

func (c *Canopy) SubscribeAddresses() (<-chan model.AddressUpdate, func()) {
	return c.addresses.Subscribe()
}

func (c *Canopy) PendingAddressLookups(ctx context.Context) ([]model.PendingAddressLookup, error) {
	return c.addresses.PendingLookups(ctx)
}
