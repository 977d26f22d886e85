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

// Package identity persists the active user identity under PERSAG_HOME
// and derives the per-user storage layout.
//
// The userid file is read on every access so that external edits take
// effect immediately. Changing the user is always an explicit operation.
package identity

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

const (
	// DefaultUserID is written back when the userid file is missing or
	// corrupt.
	DefaultUserID = "default_user"

	// UserIDFile is the file under PERSAG_HOME holding USER_ID="<id>".
	UserIDFile = "env.userid"

	userIDKey = "USER_ID"
)

// Store reads and writes the persisted user identity.
type Store struct {
	home           string
	root           string
	storageBackend string
}

// Options configure a Store. Zero values fall back to the PERSAG_HOME,
// PERSAG_ROOT and STORAGE_BACKEND environment variables, then to
// defaults under the user's home directory.
type Options struct {
	Home           string
	Root           string
	StorageBackend string
}

// NewStore creates a Store and ensures PERSAG_HOME exists with the
// default service env templates seeded.
func NewStore(opts Options) (*Store, error) {
	home := opts.Home
	if home == "" {
		home = os.Getenv("PERSAG_HOME")
	}
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, perr.Wrap(perr.KindFatal, "IdentityStore", "New", "cannot resolve home directory", err)
		}
		home = filepath.Join(userHome, ".persag")
	}

	root := opts.Root
	if root == "" {
		root = os.Getenv("PERSAG_ROOT")
	}
	if root == "" {
		root = filepath.Dir(home)
	}

	backend := opts.StorageBackend
	if backend == "" {
		backend = os.Getenv("STORAGE_BACKEND")
	}
	if backend == "" {
		backend = "persag"
	}

	s := &Store{home: home, root: root, storageBackend: backend}
	if err := s.ensureHome(); err != nil {
		return nil, err
	}
	return s, nil
}

// Home returns the PERSAG_HOME directory.
func (s *Store) Home() string { return s.home }

// Root returns the PERSAG_ROOT directory.
func (s *Store) Root() string { return s.root }

// StorageBackend returns the storage backend segment of derived paths.
func (s *Store) StorageBackend() string { return s.storageBackend }

// UserIDPath returns the path of the persisted userid file.
func (s *Store) UserIDPath() string {
	return filepath.Join(s.home, UserIDFile)
}

// GetUserID reads the active user id from disk. It is intentionally not
// memoized. A missing or corrupt file is healed by writing back
// DefaultUserID.
func (s *Store) GetUserID() string {
	path := s.UserIDPath()

	values, err := godotenv.Read(path)
	if err == nil {
		if id := strings.TrimSpace(values[userIDKey]); id != "" {
			return id
		}
	}

	slog.Warn("userid file missing or corrupt, seeding default", "path", path, "user_id", DefaultUserID)
	if writeErr := s.SetUserID(DefaultUserID); writeErr != nil {
		slog.Error("failed to seed default userid", "error", writeErr)
	}
	return DefaultUserID
}

// SetUserID atomically replaces the persisted user id.
func (s *Store) SetUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return perr.New(perr.KindInvalidInput, "IdentityStore", "SetUserID", "user id cannot be empty")
	}

	if err := os.MkdirAll(s.home, 0755); err != nil {
		return perr.Wrap(perr.KindFatal, "IdentityStore", "SetUserID", "cannot create PERSAG_HOME", err)
	}

	path := s.UserIDPath()
	tmp := path + ".tmp"
	content := fmt.Sprintf("%s=%q\n", userIDKey, userID)

	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return perr.Wrap(perr.KindFatal, "IdentityStore", "SetUserID", "cannot write userid file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return perr.Wrap(perr.KindFatal, "IdentityStore", "SetUserID", "cannot replace userid file", err)
	}
	return nil
}

// ensureHome creates PERSAG_HOME on first access and seeds the service
// env templates consumed by the dependent containers.
func (s *Store) ensureHome() error {
	if err := os.MkdirAll(s.home, 0755); err != nil {
		return perr.Wrap(perr.KindFatal, "IdentityStore", "EnsureHome", "cannot create PERSAG_HOME", err)
	}

	if _, err := os.Stat(s.UserIDPath()); os.IsNotExist(err) {
		if err := s.SetUserID(DefaultUserID); err != nil {
			return err
		}
	}

	for name, content := range serviceEnvTemplates {
		path := filepath.Join(s.home, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return perr.Wrap(perr.KindFatal, "IdentityStore", "EnsureHome",
				fmt.Sprintf("cannot seed env template %s", name), err)
		}
		slog.Debug("Seeded service env template", "path", path)
	}
	return nil
}

// serviceEnvTemplates are the default per-service env files seeded into
// a fresh PERSAG_HOME. The USER_ID line is kept in sync by the docker
// consistency controller.
var serviceEnvTemplates = map[string]string{
	"lightrag_server.env": `# LightRAG knowledge server configuration
# User configuration
USER_ID="default_user"
LIGHTRAG_PORT=9621
`,
	"lightrag_memory.env": `# LightRAG memory server configuration
# User configuration
USER_ID="default_user"
LIGHTRAG_MEMORY_PORT=9622
`,
}
