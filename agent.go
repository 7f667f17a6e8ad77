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

	"github.com/canopyfield/canopy/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Agent schedules sync passes: once at startup, on every offline to online
// transition, after local writes, and on an exponential schedule while
// retryable failures remain queued.
type Agent struct {
	canopy *Canopy
	retry  *backoff.ExponentialBackOff
	kicks  chan model.SyncReason
}

// NewAgent builds an agent whose retry delay grows from minInterval to
// maxInterval. Retries never give up.
func NewAgent(c *Canopy, minInterval, maxInterval time.Duration) *Agent {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = minInterval
	retry.MaxInterval = maxInterval
	retry.MaxElapsedTime = 0
	retry.Reset()

	a := &Agent{
		canopy: c,
		retry:  retry,
		kicks:  make(chan model.SyncReason, 1),
	}
	c.SetSyncTrigger(a.Trigger)
	return a
}

// Trigger asks for a pass without waiting for it. Requests arriving while
// one is already waiting collapse into it.
func (a *Agent) Trigger(reason model.SyncReason) {
	select {
	case a.kicks <- reason:
	default:
	}
}

// Run blocks until ctx is done.
func (a *Agent) Run(ctx context.Context) {
	if !a.canopy.RemoteConfigured() {
		logrus.Info("no remote system configured, sync agent disabled")
		<-ctx.Done()
		return
	}

	transitions, unsubscribe := a.canopy.Connectivity().Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	a.runPass(ctx, timer, model.SyncReasonStartup)
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				a.retry.Reset()
				a.runPass(ctx, timer, model.SyncReasonOnline)
			}
		case reason := <-a.kicks:
			a.runPass(ctx, timer, reason)
		case <-timer.C:
			a.runPass(ctx, timer, model.SyncReasonRetry)
		}
	}
}

func (a *Agent) runPass(ctx context.Context, timer *time.Timer, reason model.SyncReason) {
	summary, err := a.canopy.Sync(ctx, reason)
	if err != nil {
		logrus.WithError(err).WithField("reason", reason).Error("sync pass failed")
	}
	a.reschedule(timer, summary, err)
}

// reschedule arms the retry timer after a pass. A failed pass and a pass
// coalesced into one whose outcome this agent never sees are both retried
// on the backoff schedule.
func (a *Agent) reschedule(timer *time.Timer, summary model.SyncSummary, err error) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	retry := err != nil || summary.Coalesced || (!summary.Offline && summary.HasTransientFailures())
	if !retry {
		a.retry.Reset()
		return
	}
	next := a.retry.NextBackOff()
	logrus.WithFields(logrus.Fields{"in": next, "coalesced": summary.Coalesced}).Info("scheduling sync retry")
	timer.Reset(next)
}
