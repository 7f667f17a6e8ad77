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
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/canopyfield/canopy/model"
	"github.com/spf13/cobra"
)

// syncCommands runs one manual pass and prints its summary.
func syncCommands(app *canopyInstance) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "push pending inspections to the remote system",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if app.cnf.Sync.ProbeURL != "" {
				app.canopy.SetOnline(app.canopy.Connectivity().Probe(ctx, app.cnf.Sync.ProbeURL,
					time.Duration(app.cnf.Sync.ProbeTimeoutSec)*time.Second))
			}

			summary, err := app.canopy.Sync(ctx, model.SyncReasonManual)
			if err != nil {
				log.Fatalf("sync failed: %v", err)
			}
			printJSON(summary)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time the pass may take")

	return cmd
}

// pullCommands merges remote records into the local store.
func pullCommands(app *canopyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "merge inspections from the remote system into the local store",
		Run: func(cmd *cobra.Command, args []string) {
			summary, err := app.canopy.PullRemote(context.Background())
			if err != nil {
				log.Fatalf("pull failed: %v", err)
			}
			printJSON(summary)
		},
	}

	return cmd
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("Error encoding output: %v", err)
		return
	}
	fmt.Println(string(out))
}
