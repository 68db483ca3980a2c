// Package enginestate persists the engine state between runs: user settings,
// the serialized save registry and the remote server credentials, as one
// JSON document encrypted at rest with a machine-bound key. The blob is
// useless on any other machine.
package enginestate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/savebox/savebox/internal/utils"
)

// StateFileName is the blob's fixed name under the data dir.
const StateFileName = "state.savebox"

// ServerConfig holds the remote backend the saves sync against.
type ServerConfig struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}

// Settings holds user-tunable engine behavior.
type Settings struct {
	RefreshIntervalSecs int      `json:"refresh_interval_secs,omitempty"`
	PackExcludes        []string `json:"pack_excludes,omitempty"`
}

// State is the complete persisted engine state.
type State struct {
	Settings Settings        `json:"settings"`
	Saves    json.RawMessage `json:"saves,omitempty"`
	Server   *ServerConfig   `json:"server,omitempty"`
}

// HasServer reports whether a remote server is configured.
func (s *State) HasServer() bool {
	return s.Server != nil && s.Server.URL != ""
}

// CorruptStateError reports a state blob that exists but cannot be decrypted
// or decoded. The store never deletes state on its own; the caller prompts
// the user to reset or abort.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("engine state %q is corrupt or undecryptable: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// Store reads and writes the encrypted state blob at a fixed path.
type Store struct {
	path string
	key  []byte
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey overrides the machine-bound key with an explicit 32-byte key.
func WithKey(key []byte) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

// NewStore binds a store to the blob at path, deriving the machine-bound
// key unless one is provided.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == nil {
		key, err := deriveKey()
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads and decrypts the state blob. A missing blob returns
// os.ErrNotExist (first run); anything unreadable beyond that returns a
// *CorruptStateError.
func (s *Store) Load() (*State, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	plain, err := s.open(sealed)
	if err != nil {
		return nil, &CorruptStateError{Path: s.path, Err: err}
	}

	var state State
	if err := json.Unmarshal(plain, &state); err != nil {
		return nil, &CorruptStateError{Path: s.path, Err: err}
	}
	return &state, nil
}

// Save encrypts and writes the state blob. The write lands on a temp file
// first and renames into place, so a crash never leaves a half-written blob.
func (s *Store) Save(state *State) error {
	plain, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode engine state: %w", err)
	}

	sealed, err := s.seal(plain)
	if err != nil {
		return fmt.Errorf("encrypt engine state: %w", err)
	}

	if err := utils.EnsureParent(s.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), StateFileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(sealed); err != nil {
		return fmt.Errorf("write state blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync state blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state blob: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace state blob: %w", err)
	}

	success = true
	return nil
}

// Reset deletes the state blob. Only called after the user explicitly
// consented to discarding state.
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
