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

package docker

import (
	"context"
	"os/exec"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// CommandRunner abstracts subprocess execution so consistency logic is
// testable without a docker daemon.
type CommandRunner interface {
	// Run executes name with args in dir (empty dir means inherit) and
	// returns combined output.
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs real subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, perr.Wrap(perr.KindExternal, "Docker", "Run",
			name+" "+strings.Join(args, " ")+": "+output, err)
	}
	return output, nil
}
