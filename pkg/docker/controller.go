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

// Package docker keeps the USER_ID line in per-service env files in
// agreement with the active user and restarts containers across a
// user switch.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

const userIDKey = "USER_ID"

// Service is one compose-managed container whose env file carries a
// USER_ID line.
type Service struct {
	Name          string
	Dir           string
	EnvFile       string
	ContainerName string
	ComposeFile   string
}

// UserIDSource yields the active user. Reads go through it on every
// operation so external identity edits are honored.
type UserIDSource interface {
	GetUserID() string
}

// ServiceStatus is one service's consistency report. No mutation
// happens while producing it.
type ServiceStatus struct {
	Service      string `json:"service"`
	DockerUserID string `json:"docker_user_id"`
	Consistent   bool   `json:"consistent"`
	Running      bool   `json:"running"`
	Error        string `json:"error,omitempty"`
}

// SyncReport aggregates a sync pass. Operations is the ordered action
// log; in dry-run mode the log has identical structure with a DRY RUN
// annotation and no side effects behind it.
type SyncReport struct {
	Synced     []string `json:"synced"`
	Skipped    []string `json:"skipped"`
	Failed     []string `json:"failed"`
	Operations []string `json:"operations"`
}

// Success reports whether nothing failed.
func (r *SyncReport) Success() bool { return len(r.Failed) == 0 }

// Option configures a Controller.
type Option func(*Controller)

// WithRunner replaces the subprocess runner.
func WithRunner(r CommandRunner) Option { return func(c *Controller) { c.runner = r } }

// WithDryRun suppresses all file and docker mutation.
func WithDryRun(dry bool) Option { return func(c *Controller) { c.dryRun = dry } }

// WithBackupDir sets where env-file backups land.
func WithBackupDir(dir string) Option { return func(c *Controller) { c.backupDir = dir } }

// Controller drives consistency checks and repairs for a fixed set of
// services. Safe for concurrent use; each service is serialized by its
// own lock.
type Controller struct {
	services  []Service
	identity  UserIDSource
	runner    CommandRunner
	backupDir string
	dryRun    bool
	locks     map[string]*sync.Mutex
}

func NewController(services []Service, identity UserIDSource, opts ...Option) *Controller {
	c := &Controller{
		services: services,
		identity: identity,
		runner:   ExecRunner{},
		locks:    make(map[string]*sync.Mutex, len(services)),
	}
	for _, svc := range services {
		c.locks[svc.Name] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckConsistency reads every service env file and probes docker ps.
// Pure read; per-service failures land in the status, never abort the
// pass.
func (c *Controller) CheckConsistency(ctx context.Context) (map[string]ServiceStatus, error) {
	activeID := c.identity.GetUserID()

	statuses := make(map[string]ServiceStatus, len(c.services))
	for _, svc := range c.services {
		status := ServiceStatus{Service: svc.Name}

		envUserID, err := readEnvUserID(svc.EnvFile)
		if err != nil {
			status.Error = err.Error()
		} else {
			status.DockerUserID = envUserID
			status.Consistent = envUserID == activeID
		}

		running, err := c.isRunning(ctx, svc)
		if err != nil && status.Error == "" {
			status.Error = err.Error()
		}
		status.Running = running

		statuses[svc.Name] = status
	}
	return statuses, nil
}

// SyncUserIDs repairs every inconsistent service, or every service when
// forceRestart is set. Per service: backup, compose down, rewrite
// USER_ID, compose up if it had been running (or forced). A failed
// backup skips the service.
func (c *Controller) SyncUserIDs(ctx context.Context, forceRestart bool) (*SyncReport, error) {
	activeID := c.identity.GetUserID()

	statuses, err := c.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for _, svc := range c.services {
		status := statuses[svc.Name]
		if status.Consistent && !forceRestart {
			report.Skipped = append(report.Skipped, svc.Name)
			report.log("%s: already consistent, skipped", svc.Name)
			continue
		}
		if err := c.syncService(ctx, svc, activeID, status.Running, forceRestart, report); err != nil {
			report.Failed = append(report.Failed, svc.Name)
			report.log("%s: sync failed: %v", svc.Name, err)
			slog.Error("Service sync failed", "service", svc.Name, "error", err)
			continue
		}
		report.Synced = append(report.Synced, svc.Name)
	}
	return report, nil
}

// EnsureConsistency checks, optionally repairs, and re-checks. The
// boolean is the final consistency verdict across all services.
func (c *Controller) EnsureConsistency(ctx context.Context, autoFix, forceRestart bool) (bool, error) {
	statuses, err := c.CheckConsistency(ctx)
	if err != nil {
		return false, err
	}
	if allConsistent(statuses) && !forceRestart {
		return true, nil
	}
	if !autoFix {
		return false, nil
	}

	report, err := c.SyncUserIDs(ctx, forceRestart)
	if err != nil {
		return false, err
	}
	if !report.Success() {
		return false, nil
	}
	if c.dryRun {
		// Nothing was mutated, so a re-check would report the same
		// divergence.
		return false, nil
	}

	statuses, err = c.CheckConsistency(ctx)
	if err != nil {
		return false, err
	}
	return allConsistent(statuses), nil
}

func (c *Controller) syncService(ctx context.Context, svc Service, activeID string, wasRunning, forceRestart bool, report *SyncReport) error {
	lock := c.locks[svc.Name]
	lock.Lock()
	defer lock.Unlock()

	if err := c.backupEnvFile(svc, report); err != nil {
		return err
	}

	report.log("%s: compose down%s", svc.Name, c.annotation())
	if !c.dryRun {
		if _, err := c.runner.Run(ctx, svc.Dir, "docker", "compose", "-f", svc.ComposeFile, "down"); err != nil {
			return err
		}
	}

	report.log("%s: set %s=%s in %s%s", svc.Name, userIDKey, activeID, filepath.Base(svc.EnvFile), c.annotation())
	if !c.dryRun {
		if err := rewriteUserID(svc.EnvFile, activeID); err != nil {
			return err
		}
	}

	if wasRunning || forceRestart {
		report.log("%s: compose up -d%s", svc.Name, c.annotation())
		if !c.dryRun {
			if _, err := c.runner.Run(ctx, svc.Dir, "docker", "compose", "-f", svc.ComposeFile, "up", "-d"); err != nil {
				return err
			}
		}
	} else {
		report.log("%s: left stopped", svc.Name)
	}
	return nil
}

func (c *Controller) backupEnvFile(svc Service, report *SyncReport) error {
	backupDir := c.backupDir
	if backupDir == "" {
		backupDir = filepath.Join(svc.Dir, "backups")
	}
	backupPath := filepath.Join(backupDir,
		fmt.Sprintf("%s.%s.bak", filepath.Base(svc.EnvFile), time.Now().Format("20060102-150405")))

	report.log("%s: backup %s -> %s%s", svc.Name, filepath.Base(svc.EnvFile), backupPath, c.annotation())
	if c.dryRun {
		return nil
	}

	data, err := os.ReadFile(svc.EnvFile)
	if err != nil {
		return perr.Wrap(perr.KindConsistency, "Docker", "Backup",
			"cannot read env file for "+svc.Name, err)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return perr.Wrap(perr.KindConsistency, "Docker", "Backup",
			"cannot create backup dir for "+svc.Name, err)
	}
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return perr.Wrap(perr.KindConsistency, "Docker", "Backup",
			"cannot write backup for "+svc.Name, err)
	}
	return nil
}

func (c *Controller) isRunning(ctx context.Context, svc Service) (bool, error) {
	out, err := c.runner.Run(ctx, "", "docker", "ps", "--filter", "name="+svc.ContainerName, "--format", "{{.Names}}")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == svc.ContainerName {
			return true, nil
		}
	}
	return false, nil
}

func (c *Controller) annotation() string {
	if c.dryRun {
		return " (DRY RUN)"
	}
	return ""
}

func (r *SyncReport) log(format string, args ...any) {
	r.Operations = append(r.Operations, fmt.Sprintf(format, args...))
}

func allConsistent(statuses map[string]ServiceStatus) bool {
	for _, status := range statuses {
		if !status.Consistent {
			return false
		}
	}
	return true
}

func readEnvUserID(path string) (string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return "", perr.Wrap(perr.KindConsistency, "Docker", "ReadEnv", "cannot read "+path, err)
	}
	return values[userIDKey], nil
}

// rewriteUserID replaces the USER_ID line in place, preserving every
// other line. A missing line is appended under a marker comment.
func rewriteUserID(path, userID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return perr.Wrap(perr.KindConsistency, "Docker", "RewriteEnv", "cannot read "+path, err)
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), userIDKey+"=") {
			lines[i] = userIDKey + "=" + userID
			replaced = true
		}
	}
	if !replaced {
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		lines = append(lines, "", "# User configuration", userIDKey+"="+userID, "")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return perr.Wrap(perr.KindConsistency, "Docker", "RewriteEnv", "cannot write "+tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return perr.Wrap(perr.KindConsistency, "Docker", "RewriteEnv", "cannot replace "+path, err)
	}
	return nil
}
