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

// Package config owns the live runtime configuration.
//
// The Registry is the single writer; every other component reads via
// Snapshot or subscribes to change callbacks. Callbacks fire serially,
// in registration order, strictly after the mutation has been
// committed, and never while the internal lock is held.
package config

import (
	"log/slog"
	"sync"

	"github.com/suchanek/personal-agent-sub002/pkg/identity"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// ChangeCallback is invoked after a configuration mutation.
type ChangeCallback func(key string, oldValue, newValue string)

type callbackEntry struct {
	name string
	fn   ChangeCallback
}

// Registry is the process-wide configuration registry.
type Registry struct {
	mu        sync.RWMutex
	snapshot  Snapshot
	ids       *identity.Store
	callbacks []callbackEntry

	// AutoSetModel makes SetProvider also switch to the provider's
	// default model, emitted as a second change event.
	AutoSetModel bool
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
	defaultErr      error
)

// Default returns the process-wide registry, initializing it from the
// environment on first use.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = NewFromEnv()
	})
	return defaultRegistry, defaultErr
}

// NewRegistry creates a registry bound to an identity store with the
// given initial snapshot. The user id and derived paths are refreshed
// from the store.
func NewRegistry(ids *identity.Store, initial Snapshot) *Registry {
	r := &Registry{ids: ids, snapshot: initial, AutoSetModel: true}
	r.snapshot.UserID = ids.GetUserID()
	r.snapshot.Paths = identity.DerivePaths(ids.Root(), ids.StorageBackend(), r.snapshot.UserID)
	return r
}

// Snapshot returns an atomic immutable copy of the configuration.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Identity returns the underlying identity store.
func (r *Registry) Identity() *identity.Store { return r.ids }

// RegisterCallback subscribes fn under a unique name.
func (r *Registry) RegisterCallback(name string, fn ChangeCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.callbacks {
		if entry.name == name {
			return perr.New(perr.KindInvalidInput, "Config", "RegisterCallback",
				"callback already registered: "+name)
		}
	}
	r.callbacks = append(r.callbacks, callbackEntry{name: name, fn: fn})
	return nil
}

// UnregisterCallback removes the named subscription. Unknown names are
// a no-op.
func (r *Registry) UnregisterCallback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.callbacks {
		if entry.name == name {
			r.callbacks = append(r.callbacks[:i], r.callbacks[i+1:]...)
			return
		}
	}
}

// fire invokes callbacks outside the lock, in registration order.
func (r *Registry) fire(key, oldValue, newValue string) {
	r.mu.RLock()
	entries := make([]callbackEntry, len(r.callbacks))
	copy(entries, r.callbacks)
	r.mu.RUnlock()

	for _, entry := range entries {
		entry.fn(key, oldValue, newValue)
	}
}

// commit applies mutate under the write lock and returns the old and
// new values of the mutated key for callback dispatch.
func (r *Registry) commit(mutate func(*Snapshot) (old, new string)) (string, string) {
	r.mu.Lock()
	oldValue, newValue := mutate(&r.snapshot)
	r.mu.Unlock()
	return oldValue, newValue
}

// SetProvider validates and switches the LLM provider. With
// AutoSetModel enabled, the provider's default model is applied as a
// second change event.
func (r *Registry) SetProvider(p string) error {
	provider, err := ParseProvider(p)
	if err != nil {
		return err
	}

	oldValue, newValue := r.commit(func(s *Snapshot) (string, string) {
		old := string(s.Provider)
		s.Provider = provider
		return old, string(provider)
	})
	r.fire("provider", oldValue, newValue)

	if r.AutoSetModel {
		r.SetModel(DefaultModelFor(provider))
	}
	return nil
}

// SetModel switches the active model.
func (r *Registry) SetModel(model string) {
	oldValue, newValue := r.commit(func(s *Snapshot) (string, string) {
		old := s.Model
		s.Model = model
		return old, model
	})
	r.fire("model", oldValue, newValue)
}

// SetAgentMode validates and switches between single and team mode.
func (r *Registry) SetAgentMode(mode string) error {
	parsed, err := ParseAgentMode(mode)
	if err != nil {
		return err
	}
	oldValue, newValue := r.commit(func(s *Snapshot) (string, string) {
		old := string(s.AgentMode)
		s.AgentMode = parsed
		return old, string(parsed)
	})
	r.fire("agent_mode", oldValue, newValue)
	return nil
}

// SetInstructionLevel validates and switches the instruction level.
func (r *Registry) SetInstructionLevel(level string) error {
	parsed, err := ParseInstructionLevel(level)
	if err != nil {
		return err
	}
	oldValue, newValue := r.commit(func(s *Snapshot) (string, string) {
		old := string(s.InstructionLevel)
		s.InstructionLevel = parsed
		return old, string(parsed)
	})
	r.fire("instruction_level", oldValue, newValue)
	return nil
}

// SetDebugMode toggles debug mode.
func (r *Registry) SetDebugMode(enabled bool) {
	oldValue, newValue := r.commit(func(s *Snapshot) (string, string) {
		old := boolString(s.DebugMode)
		s.DebugMode = enabled
		return old, boolString(enabled)
	})
	r.fire("debug_mode", oldValue, newValue)
}

// SetUseRemote toggles remote inference URLs.
func (r *Registry) SetUseRemote(enabled bool) {
	oldValue, newValue := r.commit(func(s *Snapshot) (string, string) {
		old := boolString(s.UseRemote)
		s.UseRemote = enabled
		return old, boolString(enabled)
	})
	r.fire("use_remote", oldValue, newValue)
}

// SetUserID switches the active user. With persist, the id is written
// through the identity store (atomic replace). Derived paths are
// refreshed in the same commit so the user_id callback, fired last,
// observes a consistent path set.
func (r *Registry) SetUserID(userID string, persist bool) error {
	if persist {
		if err := r.ids.SetUserID(userID); err != nil {
			return err
		}
	}

	oldValue, newValue := r.commit(func(s *Snapshot) (string, string) {
		old := s.UserID
		s.UserID = userID
		s.Paths = identity.DerivePaths(r.ids.Root(), r.ids.StorageBackend(), userID)
		return old, userID
	})

	slog.Info("Active user switched", "old", oldValue, "new", newValue)
	r.fire("user_id", oldValue, newValue)
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
