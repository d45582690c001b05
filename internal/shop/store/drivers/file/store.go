package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/shopauth/internal/shop/store"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
)

// Store keeps the token state in a single JSON file. Writes go to a temporary
// file in the same directory that is then renamed over the target, so readers
// see either the old record or the new one.
type Store struct {
	path   string
	sealer *cryptox.Sealer
}

// sealedFile is the on-disk form when a Sealer is configured.
type sealedFile struct {
	Version int    `json:"v"`
	Sealed  string `json:"sealed"`
}

// New returns a Store writing to path. When sealer is non-nil the record is
// encrypted at rest.
func New(path string, sealer *cryptox.Sealer) *Store {
	return &Store{path: path, sealer: sealer}
}

// Path returns the file the store writes to.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) (shopsdk.TokenState, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return shopsdk.TokenState{}, store.ErrNotFound
	}
	if err != nil {
		return shopsdk.TokenState{}, fmt.Errorf("%w: %w", store.ErrCorruptState, err)
	}

	var envelope sealedFile
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return shopsdk.TokenState{}, fmt.Errorf("%w: %w", store.ErrCorruptState, err)
	}

	if envelope.Sealed != "" {
		if raw, err = s.open(envelope.Sealed); err != nil {
			return shopsdk.TokenState{}, fmt.Errorf("%w: %w", store.ErrCorruptState, err)
		}
	}

	var state shopsdk.TokenState
	if err := json.Unmarshal(raw, &state); err != nil {
		return shopsdk.TokenState{}, fmt.Errorf("%w: %w", store.ErrCorruptState, err)
	}
	return state, nil
}

func (s *Store) open(sealed string) ([]byte, error) {
	if s.sealer == nil {
		return nil, errors.New("state file is encrypted but no key is configured")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	return s.sealer.Open(ciphertext)
}

func (s *Store) Save(_ context.Context, state shopsdk.TokenState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode state: %w", err)
	}

	if s.sealer != nil {
		ciphertext, err := s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("file store: seal state: %w", err)
		}
		data, err = json.MarshalIndent(sealedFile{
			Version: 1,
			Sealed:  base64.StdEncoding.EncodeToString(ciphertext),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("file store: encode sealed state: %w", err)
		}
	}

	return writeAtomic(s.path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("file store: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file store: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("file store: replace: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open between calls.
func (s *Store) Close() error { return nil }

// Ping checks that the directory holding the state file exists.
func (s *Store) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("file store: %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

var _ store.Store = (*Store)(nil)
