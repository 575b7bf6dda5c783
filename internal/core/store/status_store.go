package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/markdave123-py/pawls/internal/core"
)

var _ core.StatusStore = (*StatusStore)(nil)

// StatusStore keeps one JSON object per user in <root>/status/<user>.json,
// keyed by document sha.
type StatusStore struct {
	dir   string
	locks *KeyedMutex
}

func NewStatusStore(root string) *StatusStore {
	return &StatusStore{dir: filepath.Join(root, statusDir), locks: NewKeyedMutex()}
}

func (s *StatusStore) path(user string) (string, error) {
	if err := ValidateKey(user); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, user+".json"), nil
}

func (s *StatusStore) Exists(user string) (bool, error) {
	path, err := s.path(user)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Load returns the record's entries in file order.
func (s *StatusStore) Load(user string) ([]core.StatusEntry, error) {
	path, err := s.path(user)
	if err != nil {
		return nil, err
	}
	obj, err := readObject(path)
	if err != nil {
		return nil, err
	}
	entries := make([]core.StatusEntry, 0, len(obj))
	for _, m := range obj {
		entries = append(entries, core.StatusEntry{Sha: m.Key, Raw: m.Value})
	}
	return entries, nil
}

func (s *StatusStore) SetField(user, sha, field string, value any) (bool, error) {
	path, err := s.path(user)
	if err != nil {
		return false, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", field, err)
	}

	unlock := s.locks.Lock(user)
	defer unlock()

	record, err := readObject(path)
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var entry object
	if raw, ok := record.get(sha); ok {
		if entry, err = decodeObject(raw); err != nil {
			return false, fmt.Errorf("status entry %s for %s: %w", sha, user, err)
		}
	}
	entry = entry.set(field, encoded)

	rawEntry, err := entry.MarshalJSON()
	if err != nil {
		return false, err
	}
	record = record.set(sha, rawEntry)

	if err := writeObject(path, record); err != nil {
		return false, err
	}
	return true, nil
}

func (s *StatusStore) Append(user string, entries []core.StatusEntry) (int, error) {
	path, err := s.path(user)
	if err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(user)
	defer unlock()

	record, err := readObject(path)
	if err != nil && !errors.Is(err, ErrNotExist) {
		return 0, err
	}

	added := 0
	for _, e := range entries {
		if _, ok := record.get(e.Sha); ok {
			continue
		}
		record = record.set(e.Sha, e.Raw)
		added++
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", s.dir, err)
	}
	if err := writeObject(path, record); err != nil {
		return 0, err
	}
	return added, nil
}

func readObject(path string) (object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, notExist(err)
	}
	obj, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obj, nil
}

func writeObject(path string, obj object) error {
	data, err := obj.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = writeFileAtomic(path, bytes.NewReader(data))
	return err
}
