package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// store reads and writes one JSON document per record under root/collection.
// Every repository shares mu, so read-compare-write sequences are atomic
// within the process.
type store struct {
	root string
	mu   *sync.Mutex
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return errors.New("ID cannot be empty")
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("ID contains invalid characters")
	}

	return nil
}

func (s *store) path(collection, id string) string {
	return filepath.Join(s.root, collection, id+".json")
}

// write persists v through a temporary file and rename.
func (s *store) write(collection, id string, v any) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("invalid %s ID: %w", collection, err)
	}

	dir := filepath.Join(s.root, collection)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", collection, id, err)
	}

	tmp := filepath.Join(dir, "."+id+".tmp")

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", collection, id, err)
	}

	err = os.Rename(tmp, s.path(collection, id))
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", collection, id, err)
	}

	return nil
}

// read loads one record. found is false when no file exists for id.
func read[T any](s *store, collection, id string) (record *T, found bool, err error) {
	if err := validateID(id); err != nil {
		return nil, false, fmt.Errorf("invalid %s ID: %w", collection, err)
	}

	data, err := os.ReadFile(s.path(collection, id)) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read %s %s: %w", collection, id, err)
	}

	record = new(T)

	err = json.Unmarshal(data, record)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal %s %s: %w", collection, id, err)
	}

	return record, true, nil
}

// readAll loads every record of a collection. A missing directory is empty.
func readAll[T any](s *store, collection string) ([]*T, error) {
	dir := filepath.Join(s.root, collection)

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*T{}, nil
		}

		return nil, fmt.Errorf("failed to read %s directory: %w", collection, err)
	}

	records := make([]*T, 0, len(files))

	for _, file := range files {
		name := file.Name()
		if file.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}

		record, found, err := read[T](s, collection, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		if found {
			records = append(records, record)
		}
	}

	return records, nil
}
