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

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/internal/request"
	"github.com/canopyfield/canopy/model"
	"github.com/sirupsen/logrus"
)

// WebhookSender forwards an event to the webhook queue. It is registered by
// the service at startup so this package does not import it.
type WebhookSender func(event string, payload interface{}) error

var webhookSender WebhookSender

// RegisterWebhookSender installs the function used to forward attention
// alerts as webhook events. A later call replaces the earlier sender.
func RegisterWebhookSender(sender WebhookSender) {
	webhookSender = sender
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(title string, fields map[string]string, order []string) slackMessage {
	msg := slackMessage{Blocks: []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: title, Emoji: true},
	}}}
	for _, name := range order {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type:   "section",
			Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", name, fields[name])}},
		})
	}
	return msg
}

// SlackNotification posts msg to the configured Slack webhook.
func SlackNotification(ctx context.Context, webhookURL string, msg slackMessage) error {
	payload, err := request.ToJsonReq(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, payload)
	if err != nil {
		return err
	}

	_, err = request.Call(req, nil)
	return err
}

func slackURL() string {
	conf, err := config.Fetch()
	if err != nil {
		return ""
	}
	return conf.Notification.Slack.WebhookUrl
}

// NotifyError logs systemError and, when Slack is configured, posts it
// there. It never blocks the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		url := slackURL()
		if url == "" {
			return
		}
		msg := buildSlackMessage("Error From Canopy", map[string]string{
			"Error": systemError.Error(),
			"Time":  time.Now().Format(time.RFC822),
		}, []string{"Error", "Time"})

		ctx, cancel := context.WithTimeout(context.Background(), request.DefaultTimeout)
		defer cancel()
		if err := SlackNotification(ctx, url, msg); err != nil {
			logrus.WithError(err).Warn("failed to send slack notification")
		}
	}(systemError)
}

// NotifyAttention reports a pending write that needs a person to look at
// it: the remote rejected the payload or attempts crossed the threshold.
func NotifyAttention(entry model.PendingWrite) {
	logrus.WithFields(logrus.Fields{
		"record_id":  entry.RecordID,
		"attempts":   entry.Attempts,
		"last_error": entry.LastError,
	}).Warn("pending write needs attention")

	if webhookSender != nil {
		if err := webhookSender("inspection.needs_attention", entry); err != nil {
			logrus.WithError(err).Warn("failed to queue needs_attention webhook")
		}
	}

	url := slackURL()
	if url == "" {
		return
	}
	go func() {
		msg := buildSlackMessage("Inspection Needs Attention", map[string]string{
			"Inspection": entry.RecordID,
			"Attempts":   fmt.Sprintf("%d", entry.Attempts),
			"Last error": entry.LastError,
		}, []string{"Inspection", "Attempts", "Last error"})

		ctx, cancel := context.WithTimeout(context.Background(), request.DefaultTimeout)
		defer cancel()
		if err := SlackNotification(ctx, url, msg); err != nil {
			logrus.WithError(err).Warn("failed to send slack notification")
		}
	}()
}
