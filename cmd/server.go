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
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/canopyfield/canopy"
	"github.com/canopyfield/canopy/api"
	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/internal/traces"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func initializeRouter(app *canopyInstance) *gin.Engine {
	return api.NewAPI(app.canopy).Router()
}

func initializeTracing(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	shutdown, err := traces.SetupOTelSDK(ctx, "CANOPY", cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

// startBackground runs the connectivity probe and the sync agent until ctx
// is done.
func startBackground(ctx context.Context, app *canopyInstance) {
	sync := app.cnf.Sync
	go app.canopy.Connectivity().Run(ctx, sync.ProbeURL,
		time.Duration(sync.ProbeIntervalSec)*time.Second,
		time.Duration(sync.ProbeTimeoutSec)*time.Second)

	agent := canopy.NewAgent(app.canopy,
		time.Duration(sync.RetryMinIntervalSec)*time.Second,
		time.Duration(sync.RetryMaxIntervalSec)*time.Second)
	go agent.Run(ctx)
}

func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	server := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("Starting server on http://localhost:%s", cfg.Port)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// serverCommands returns the command that starts the HTTP API together with
// the sync agent.
func serverCommands(app *canopyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start canopy server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initializeTracing(ctx, app.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			router := initializeRouter(app)
			startBackground(ctx, app)

			if err := startServer(ctx, router, app.cnf.Server); err != nil {
				logrus.WithError(err).Error("server stopped")
			}
		},
	}

	return cmd
}
