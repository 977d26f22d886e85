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
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/docker"
	"github.com/suchanek/personal-agent-sub002/pkg/identity"
)

// TeamCmd starts an agent session, interactive unless -q is given.
type TeamCmd struct {
	Remote           bool   `help:"Use remote inference URLs."`
	Single           bool   `help:"Run one generalist agent instead of the specialist team."`
	Recreate         bool   `help:"Restart dependent containers even when their user id is consistent."`
	InstructionLevel string `name:"instruction-level" help:"Prompt sophistication (MINIMAL, CONCISE, STANDARD, EXPLICIT, EXPERIMENTAL)." placeholder:"L"`
	Query            string `short:"q" help:"Run a single query and exit."`
}

func (c *TeamCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Default()
	if err != nil {
		return err
	}

	if c.Remote {
		cfg.SetUseRemote(true)
	}
	mode := config.AgentModeTeam
	if c.Single {
		mode = config.AgentModeSingle
	}
	if err := cfg.SetAgentMode(string(mode)); err != nil {
		return err
	}
	if c.InstructionLevel != "" {
		if err := cfg.SetInstructionLevel(c.InstructionLevel); err != nil {
			return err
		}
	}

	// Dependent containers must agree on the active user before any
	// memory write leaves the process.
	controller := newDockerController(cfg.Identity(), false)
	if ok, err := controller.EnsureConsistency(ctx, true, c.Recreate); err != nil {
		color.Yellow("Warning: container consistency check failed: %v", err)
	} else if !ok {
		color.Yellow("Warning: container user ids still diverge; graph writes may land under the wrong user")
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	reportGraphHealth(ctx, rt)

	if c.Query != "" {
		return runOnce(ctx, rt, c.Query)
	}
	return runSession(ctx, rt, cfg)
}

func runOnce(ctx context.Context, rt *runtime, query string) error {
	result, err := rt.Run(ctx, query, printChunk)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	if result.FinalContent != "" {
		fmt.Println()
	}
	return nil
}

// reportGraphHealth probes both graph services so a dead backend is
// visible before the first query instead of failing mid-session.
func reportGraphHealth(ctx context.Context, rt *runtime) {
	for name, healthy := range map[string]bool{
		"knowledge graph": rt.knowledgeGraph.Health(ctx),
		"memory graph":    rt.memoryGraph.Health(ctx),
	} {
		if !healthy {
			color.Yellow("Warning: %s service is unreachable; related features degrade to local-only", name)
		}
	}
}

// newDockerController binds the lightrag services to their env files
// under PERSAG_HOME.
func newDockerController(ids *identity.Store, dryRun bool) *docker.Controller {
	home := ids.Home()
	services := []docker.Service{
		{
			Name:          "lightrag_server",
			Dir:           filepath.Join(home, "lightrag_server"),
			EnvFile:       filepath.Join(home, "lightrag_server.env"),
			ContainerName: "lightrag_server",
			ComposeFile:   "docker-compose.yml",
		},
		{
			Name:          "lightrag_memory",
			Dir:           filepath.Join(home, "lightrag_memory"),
			EnvFile:       filepath.Join(home, "lightrag_memory.env"),
			ContainerName: "lightrag_memory",
			ComposeFile:   "docker-compose.yml",
		},
	}
	opts := []docker.Option{docker.WithBackupDir(filepath.Join(home, "backups"))}
	if dryRun {
		opts = append(opts, docker.WithDryRun(true))
	}
	return docker.NewController(services, ids, opts...)
}
