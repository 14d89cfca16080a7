package credstore

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultNamespace prefixes every key so the application's secrets cannot
// collide with unrelated entries sharing the same store directory.
const DefaultNamespace = "smartpc/"

const (
	secretsFileName = "credentials.dat"
	saltFileName    = "store.salt"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps secrets in a single JSON file, each value sealed with a
// key derived from the local user account. It satisfies Store with fail-soft
// semantics: any I/O or decryption error is logged and surfaced as
// false/absent.
type FileStore struct {
	path      string
	namespace string
	box       *cipherBox

	lock    sync.Mutex
	entries map[string]string // namespaced key -> base64(sealed value)
}

type settings struct {
	dir       string
	namespace string
	key       []byte
}

// Option configures Open.
type Option func(*settings)

// WithDir overrides the store directory (default: the user config dir).
func WithDir(dir string) Option {
	return func(s *settings) {
		s.dir = dir
	}
}

// WithNamespace overrides the key namespace prefix.
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		s.namespace = namespace
	}
}

// WithKey supplies an explicit 32-byte protection key instead of deriving
// one from the local user account. Intended for tests and headless use.
func WithKey(key []byte) Option {
	return func(s *settings) {
		s.key = key
	}
}

// Open opens (or creates) the encrypted store for the local user.
func Open(options ...Option) (*FileStore, error) {
	s := settings{namespace: DefaultNamespace}
	for _, opt := range options {
		opt(&s)
	}

	dir := s.dir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "[credstore.Open] os.UserConfigDir")
		}
		dir = filepath.Join(base, "smartpc")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[credstore.Open] os.MkdirAll")
	}

	key := s.key
	if key == nil {
		salt, err := loadOrCreateSalt(filepath.Join(dir, saltFileName))
		if err != nil {
			return nil, errors.Wrap(err, "[credstore.Open] loadOrCreateSalt")
		}
		if key, err = deriveUserKey(salt); err != nil {
			return nil, errors.Wrap(err, "[credstore.Open] deriveUserKey")
		}
	}

	box, err := newCipherBox(key)
	if err != nil {
		return nil, errors.Wrap(err, "[credstore.Open] newCipherBox")
	}

	fs := &FileStore{
		path:      filepath.Join(dir, secretsFileName),
		namespace: s.namespace,
		box:       box,
		entries:   map[string]string{},
	}
	fs.load()
	return fs, nil
}

// Set writes a secret under key, reporting whether the write succeeded.
func (fs *FileStore) Set(key, value string) bool {
	sealed, err := fs.box.seal([]byte(value))
	if err != nil {
		log.Err(err).Str("key", key).Msg("credstore: failed to seal value")
		return false
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.entries[fs.namespace+key] = base64.StdEncoding.EncodeToString(sealed)
	if err := fs.save(); err != nil {
		delete(fs.entries, fs.namespace+key)
		log.Err(err).Str("key", key).Msg("credstore: failed to persist value")
		return false
	}
	return true
}

// Get reads and decrypts a secret. Missing, corrupt or undecryptable
// entries deterministically yield absent.
func (fs *FileStore) Get(key string) (string, bool) {
	fs.lock.Lock()
	encoded, ok := fs.entries[fs.namespace+key]
	fs.lock.Unlock()
	if !ok {
		return "", false
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		log.Err(err).Str("key", key).Msg("credstore: stored value is not valid base64")
		return "", false
	}
	plaintext, err := fs.box.open(sealed)
	if err != nil {
		log.Err(err).Str("key", key).Msg("credstore: failed to decrypt stored value")
		return "", false
	}
	return string(plaintext), true
}

// Remove deletes a secret. Removing an absent key is not an error.
func (fs *FileStore) Remove(key string) bool {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, ok := fs.entries[fs.namespace+key]; !ok {
		return true
	}
	delete(fs.entries, fs.namespace+key)
	if err := fs.save(); err != nil {
		log.Err(err).Str("key", key).Msg("credstore: failed to persist removal")
		return false
	}
	return true
}

// Exists reports whether a secret is present under key.
func (fs *FileStore) Exists(key string) bool {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	_, ok := fs.entries[fs.namespace+key]
	return ok
}

// load reads the secrets file into memory. A missing file starts an empty
// store; an unreadable file is logged and treated as empty.
func (fs *FileStore) load() {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Err(err).Str("path", fs.path).Msg("credstore: failed to read secrets file")
		}
		return
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Err(err).Str("path", fs.path).Msg("credstore: secrets file is corrupt, starting empty")
		return
	}
	fs.entries = entries
}

func (fs *FileStore) save() error {
	data, err := json.Marshal(fs.entries)
	if err != nil {
		return errors.Wrap(err, "[FileStore.save] json.Marshal")
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.save] os.WriteFile")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[FileStore.save] os.Rename")
	}
	return nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltLength {
		return salt, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "[loadOrCreateSalt] os.ReadFile")
	}

	if salt, err = newSalt(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, errors.Wrap(err, "[loadOrCreateSalt] os.WriteFile")
	}
	return salt, nil
}
