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
	"net/http"
	"sync"
	"time"

	"github.com/canopyfield/canopy/internal/request"
	"github.com/sirupsen/logrus"
)

// Monitor tracks whether the device is online. State changes come from
// explicit reports by the app and from probing a URL; subscribers receive
// every transition.
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	changedAt   time.Time
	subscribers map[int]chan bool
	nextID      int
}

func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:      online,
		changedAt:   time.Now().UTC(),
		subscribers: make(map[int]chan bool),
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// ChangedAt returns when the state last flipped.
func (m *Monitor) ChangedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changedAt
}

// Set records the current state and reports whether it changed. A change is
// delivered to every subscriber; a subscriber that has not consumed the
// previous transition only sees the latest one.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return false
	}
	m.online = online
	m.changedAt = time.Now().UTC()
	logrus.WithField("online", online).Info("connectivity changed")

	for _, ch := range m.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	return true
}

// Subscribe returns a channel of transitions and a function that cancels
// the subscription.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
			close(ch)
		})
	}
}

// Probe reports whether probeURL answers at all. Any HTTP response counts
// as reachable; only transport errors mean offline.
func (m *Monitor) Probe(ctx context.Context, probeURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		logrus.WithError(err).Warn("invalid connectivity probe url")
		return m.Online()
	}
	_, err = request.Call(req, nil)
	var statusErr *request.StatusError
	return err == nil || errors.As(err, &statusErr)
}

// Run probes probeURL every interval until ctx is done. Without a probe URL
// it returns immediately and the state only changes through Set.
func (m *Monitor) Run(ctx context.Context, probeURL string, interval, timeout time.Duration) {
	if probeURL == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		online := m.Probe(ctx, probeURL, timeout)
		if ctx.Err() != nil {
			return
		}
		m.Set(online)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
