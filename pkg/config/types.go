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

package config

import (
	"fmt"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/identity"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// Provider identifies an LLM inference backend.
type Provider string

const (
	ProviderOllama   Provider = "ollama"
	ProviderOpenAI   Provider = "openai"
	ProviderLMStudio Provider = "lm-studio"
)

// ParseProvider validates a provider string.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderLMStudio:
		return ProviderLMStudio, nil
	default:
		return "", perr.New(perr.KindInvalidInput, "Config", "ParseProvider",
			fmt.Sprintf("unknown provider %q (valid: ollama, openai, lm-studio)", s))
	}
}

// DefaultModelFor returns the default model for a provider, used when
// auto_set_model is enabled.
func DefaultModelFor(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderLMStudio:
		return "qwen2.5-7b-instruct"
	default:
		return "qwen3:1.7b"
	}
}

// AgentMode selects single-agent or team operation.
type AgentMode string

const (
	AgentModeSingle AgentMode = "single"
	AgentModeTeam   AgentMode = "team"
)

// ParseAgentMode validates an agent mode string.
func ParseAgentMode(s string) (AgentMode, error) {
	switch AgentMode(strings.ToLower(strings.TrimSpace(s))) {
	case AgentModeSingle:
		return AgentModeSingle, nil
	case AgentModeTeam:
		return AgentModeTeam, nil
	default:
		return "", perr.New(perr.KindInvalidInput, "Config", "ParseAgentMode",
			fmt.Sprintf("unknown agent mode %q (valid: single, team)", s))
	}
}

// InstructionLevel selects the sophistication of the system
// instructions given to the LLM.
type InstructionLevel string

const (
	InstructionMinimal      InstructionLevel = "MINIMAL"
	InstructionConcise      InstructionLevel = "CONCISE"
	InstructionStandard     InstructionLevel = "STANDARD"
	InstructionExplicit     InstructionLevel = "EXPLICIT"
	InstructionExperimental InstructionLevel = "EXPERIMENTAL"
)

// ParseInstructionLevel validates an instruction level string.
func ParseInstructionLevel(s string) (InstructionLevel, error) {
	switch InstructionLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case InstructionMinimal:
		return InstructionMinimal, nil
	case InstructionConcise:
		return InstructionConcise, nil
	case InstructionStandard:
		return InstructionStandard, nil
	case InstructionExplicit:
		return InstructionExplicit, nil
	case InstructionExperimental:
		return InstructionExperimental, nil
	default:
		return "", perr.New(perr.KindInvalidInput, "Config", "ParseInstructionLevel",
			fmt.Sprintf("unknown instruction level %q", s))
	}
}

// Snapshot is an immutable copy of the runtime configuration. Derived
// paths are recomputed on every user switch and must not be cached
// across one.
type Snapshot struct {
	UserID            string
	Provider          Provider
	Model             string
	OllamaURL         string
	RemoteOllamaURL   string
	LMStudioURL       string
	RemoteLMStudioURL string
	OpenAIURL         string
	LightRAGURL       string
	LightRAGMemoryURL string
	AgentMode         AgentMode
	InstructionLevel  InstructionLevel
	DebugMode         bool
	UseRemote         bool
	UseMCP            bool
	EnableMemory      bool
	Seed              int

	Paths identity.StoragePaths
}

// LLMBaseURL returns the inference URL for the active provider,
// honoring UseRemote.
func (s Snapshot) LLMBaseURL() string {
	switch s.Provider {
	case ProviderOpenAI:
		return s.OpenAIURL
	case ProviderLMStudio:
		if s.UseRemote && s.RemoteLMStudioURL != "" {
			return s.RemoteLMStudioURL
		}
		return s.LMStudioURL
	default:
		if s.UseRemote && s.RemoteOllamaURL != "" {
			return s.RemoteOllamaURL
		}
		return s.OllamaURL
	}
}
