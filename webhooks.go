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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/canopyfield/canopy/config"
	redis_db "github.com/canopyfield/canopy/internal/redis-db"
	"github.com/canopyfield/canopy/internal/request"
	"github.com/canopyfield/canopy/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	WEBHOOK_QUEUE       = "canopy_webhooks"
	webhookMaxRetry     = 10
	webhookTaskDeadline = 30 * time.Second
)

// WebhookQueue publishes events as asynq tasks. A worker process delivers
// them to the configured webhook URL with ProcessWebhook.
type WebhookQueue struct {
	client *asynq.Client
}

// QueueRedisOption converts the configured Redis address into asynq
// connection options.
func QueueRedisOption(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewWebhookQueue connects to the Redis instance in the configuration.
func NewWebhookQueue(conf *config.Configuration) (*WebhookQueue, error) {
	opt, err := QueueRedisOption(conf)
	if err != nil {
		return nil, err
	}
	return &WebhookQueue{client: asynq.NewClient(opt)}, nil
}

// Publish enqueues event for delivery.
func (w *WebhookQueue) Publish(event string, data interface{}) error {
	payload, err := json.Marshal(model.WebhookEvent{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(WEBHOOK_QUEUE, payload,
		asynq.Queue(WEBHOOK_QUEUE),
		asynq.MaxRetry(webhookMaxRetry),
		asynq.Timeout(webhookTaskDeadline),
	)
	info, err := w.client.Enqueue(task)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("failed to enqueue webhook")
		return err
	}
	logrus.WithFields(logrus.Fields{"event": event, "task_id": info.ID}).Debug("webhook enqueued")
	return nil
}

func (w *WebhookQueue) Close() error {
	return w.client.Close()
}

// ProcessWebhook delivers a queued event. Non-2xx answers other than 408
// and 429 in the 4xx range are not retried.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		logrus.WithError(err).Error("invalid webhook payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	body, err := request.ToJsonReq(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, body)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	_, err = request.Call(req, nil)
	var statusErr *request.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusRequestTimeout && statusErr.StatusCode != http.StatusTooManyRequests {
		logrus.WithField("event", event.Event).WithError(err).Warn("webhook rejected")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	logrus.WithField("event", event.Event).Info("webhook delivered")
	return nil
}
