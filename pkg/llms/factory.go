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

package llms

import (
	"fmt"

	"github.com/suchanek/personal-agent-sub002/pkg/config"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// NewProvider builds the provider the snapshot selects, pointed at the
// right base URL for the local/remote toggle.
func NewProvider(snap config.Snapshot) (Provider, error) {
	switch snap.Provider {
	case config.ProviderOllama:
		return NewOllamaProvider(snap.LLMBaseURL(), snap.Model), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(snap.Model, ""), nil
	case config.ProviderLMStudio:
		return NewCompatibleProvider("lm-studio", snap.LLMBaseURL(), snap.Model), nil
	default:
		return nil, perr.New(perr.KindInvalidInput, "LLM", "NewProvider",
			fmt.Sprintf("unknown provider %q", snap.Provider))
	}
}
