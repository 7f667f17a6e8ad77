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
	"fmt"
	"log"
	"os"

	"github.com/canopyfield/canopy"
	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/database"
	"github.com/canopyfield/canopy/internal/blob"
	"github.com/canopyfield/canopy/internal/dynamics"
	"github.com/canopyfield/canopy/internal/geocoding"
	"github.com/canopyfield/canopy/internal/notification"
	redis_db "github.com/canopyfield/canopy/internal/redis-db"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Canopy represents the CLI application, encapsulating the root Cobra command.
type Canopy struct {
	cmd *cobra.Command
}

// canopyInstance holds the service and its collaborators for the commands.
type canopyInstance struct {
	canopy *canopy.Canopy
	cnf    *config.Configuration
	db     *database.Datasource
	redis  *redis_db.Redis
}

func (app *canopyInstance) close() {
	if app.canopy != nil {
		_ = app.canopy.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the service before any command runs.
func preRun(app *canopyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		if err := setupCanopy(cmd.Context(), app, cnf); err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.cnf = cnf
		return nil
	}
}

// setupCanopy opens the local store and connects whichever outside systems
// the configuration names. Missing ones leave the service running without
// that capability.
func setupCanopy(ctx context.Context, app *canopyInstance, cfg *config.Configuration) error {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}
	app.db = db

	opts, err := buildOptions(ctx, app, cfg)
	if err != nil {
		return err
	}

	newCanopy, err := canopy.NewCanopy(db, opts)
	if err != nil {
		return fmt.Errorf("error creating canopy: %v", err)
	}
	app.canopy = newCanopy
	return nil
}

func buildOptions(ctx context.Context, app *canopyInstance, cfg *config.Configuration) (canopy.Options, error) {
	var opts canopy.Options

	if cfg.Dynamics.Url != "" {
		opts.Remote = dynamics.NewClient(ctx, cfg.Dynamics)
	} else {
		logrus.Warn("no dynamics url configured, inspections will stay local")
	}

	if cfg.Geocoding.MapboxToken != "" {
		opts.Geocoder = geocoding.NewMapbox(cfg.Geocoding)
	}

	if cfg.Storage.Bucket != "" && (cfg.Storage.AccessKeyId != "" || cfg.Storage.Endpoint != "") {
		uploader, err := blob.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			return opts, fmt.Errorf("error creating image uploader: %v", err)
		}
		opts.Uploader = uploader
	}

	if cfg.Redis.Dns != "" {
		r, err := redis_db.NewRedisClient(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
		if err != nil {
			logrus.WithError(err).Warn("redis unavailable, running without shared cache and sync lock")
		} else {
			app.redis = r
			opts.Redis = r.Client()
		}
	}

	return opts, nil
}

// NewCLI creates the command-line interface for the inspection service.
func NewCLI() *Canopy {
	var configFile string
	app := &canopyInstance{}

	var rootCmd = &cobra.Command{
		Use:   "canopy",
		Short: "Offline-first tree inspection sync service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./canopy.json", "Configuration file for canopy")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		app.close()
	}

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(syncCommands(app))
	rootCmd.AddCommand(pullCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))

	return &Canopy{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Canopy) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	cli := NewCLI()
	cli.executeCLI()
}
