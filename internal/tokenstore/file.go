package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/bankshield/internal/errors"
)

// FileStore keeps the credential in a JSON file readable only by the owner.
//
// When a passphrase is configured the JSON document is sealed before it is
// written; see seal.go for the envelope format.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// Option configures a FileStore
type Option func(*FileStore)

// WithPassphrase seals the file at rest with a key derived from passphrase
func WithPassphrase(passphrase string) Option {
	return func(f *FileStore) {
		if passphrase != "" {
			f.passphrase = []byte(passphrase)
		}
	}
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string, opts ...Option) *FileStore {
	f := &FileStore{path: path}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the backing file path
func (f *FileStore) Path() string {
	return f.path
}

// Save writes the credential, replacing any previous one
func (f *FileStore) Save(cred Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cred.Empty() {
		return f.remove()
	}

	data, err := json.MarshalIndent(document{
		AccessTokenKey:  cred.AccessToken,
		RefreshTokenKey: cred.RefreshToken,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to encode credential", err)
	}

	if f.passphrase != nil {
		data, err = seal(data, f.passphrase)
		if err != nil {
			return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to seal credential", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to create credential directory", err)
	}

	// Write then rename so a crash never leaves half a token on disk
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to write credential", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to write credential", err)
	}
	return nil
}

// Load reads the credential. A missing file is not an error.
func (f *FileStore) Load() (Credential, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed, "failed to read credential", err)
	}

	if isSealed(data) {
		if f.passphrase == nil {
			return Credential{}, false, errors.New(errors.KindValidation, errors.ErrCodeFileUnmarshal,
				fmt.Sprintf("%s is sealed", f.path)).
				WithSuggestion("Set BANKSHIELD_TOKEN_PASSPHRASE to unlock it")
		}
		data, err = unseal(data, f.passphrase)
		if err != nil {
			return Credential{}, false, errors.Wrap(errors.KindValidation, errors.ErrCodeFileUnmarshal, "failed to unseal credential", err)
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Credential{}, false, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileUnmarshal, "failed to parse credential", err)
	}

	cred := Credential{
		AccessToken:  doc[AccessTokenKey],
		RefreshToken: doc[RefreshTokenKey],
	}
	return cred, !cred.Empty(), nil
}

// Clear deletes the credential file
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remove()
}

func (f *FileStore) remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to remove credential", err)
	}
	return nil
}

// document is the on-disk shape, keyed by the fixed storage keys
type document map[string]string
