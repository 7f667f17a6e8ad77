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

package main

import (
	"context"
	"log"

	"github.com/canopyfield/canopy"
	"github.com/canopyfield/canopy/config"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

func processWebhook(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("canopy.webhooks.worker").Start(ctx, "Deliver Webhook From Redis Queue")
	defer span.End()

	if err := canopy.ProcessWebhook(ctx, t); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	opt, err := canopy.QueueRedisOption(conf)
	if err != nil {
		return nil, err
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{canopy.WEBHOOK_QUEUE: 1},
		Logger:      logrus.StandardLogger(),
	}), nil
}

// workerCommands starts the asynq worker that delivers queued webhooks.
func workerCommands(app *canopyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start canopy webhook workers",
		Run: func(cmd *cobra.Command, args []string) {
			if app.cnf.Redis.Dns == "" {
				log.Fatal("workers need a redis dns")
			}

			srv, err := initializeWorkerServer(app.cnf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			mux.HandleFunc(canopy.WEBHOOK_QUEUE, processWebhook)
			if err := srv.Run(mux); err != nil {
				log.Fatal("Error running server:", err)
			}
		},
	}

	return cmd
}
