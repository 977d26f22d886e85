// Copyright 2025 Eric G. Suchanek
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/suchanek/personal-agent-sub002/pkg/config"
)

// SyncCmd checks and repairs USER_ID divergence between the identity
// store and the dependent container env files.
type SyncCmd struct {
	Check        bool `help:"Report consistency only, never modify anything."`
	DryRun       bool `name:"dry-run" help:"Log what a sync would do without running it."`
	ForceRestart bool `name:"force-restart" help:"Restart services even when consistent."`
}

func (c *SyncCmd) Run() error {
	ctx := context.Background()

	cfg, err := config.Default()
	if err != nil {
		return err
	}
	controller := newDockerController(cfg.Identity(), c.DryRun)

	statuses, err := controller.CheckConsistency(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	divergent := 0
	for _, name := range names {
		status := statuses[name]
		switch {
		case status.Error != "":
			color.Yellow("  %-18s error: %s", name, status.Error)
		case status.Consistent:
			fmt.Printf("  %-18s ok (USER_ID=%s)\n", name, status.DockerUserID)
		default:
			color.Red("  %-18s diverged (USER_ID=%s, active=%s)", name, status.DockerUserID, cfg.Snapshot().UserID)
			divergent++
		}
	}

	if c.Check {
		if divergent > 0 {
			return fmt.Errorf("%d service(s) diverged; run persag sync to repair", divergent)
		}
		return nil
	}
	if divergent == 0 && !c.ForceRestart {
		fmt.Println("All services consistent; nothing to do.")
		return nil
	}

	report, err := controller.SyncUserIDs(ctx, c.ForceRestart)
	if err != nil {
		return err
	}
	for _, line := range report.Operations {
		fmt.Println(line)
	}
	fmt.Printf("Synced %d, skipped %d, failed %d\n",
		len(report.Synced), len(report.Skipped), len(report.Failed))
	if !report.Success() {
		return fmt.Errorf("sync failed for: %v", report.Failed)
	}
	return nil
}
