// Package trainingdata looks up whether an utterance matches a
// known training example. It is a boundary to the training
// pipeline; here the mapping is read from a JSON file of the shape
//
//	{"tenant": {"utterance text": "example id", ...}, ...}
//
// keyed by lowercased utterance text.
package trainingdata

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/udit-pandey/kairon/internal/watch"
)

const reloadDebounce = 500 * time.Millisecond

// Lookup resolves a tenant's known training examples.
type Lookup interface {
	// Examples returns the tenant's mapping from normalized
	// (lowercased) utterance text to example id. The returned map
	// must not be mutated.
	Examples(ctx context.Context, tenant string) (map[string]string, error)
}

// FileStore is a file-backed Lookup.
type FileStore struct {
	path string

	mu       sync.RWMutex
	byTenant map[string]map[string]string

	reloader *watch.Reloader
}

// NewFileStore loads the mapping file at path. A missing file is
// not an error; every tenant then has no known examples.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Watch reloads the mapping file when it changes on disk.
func (s *FileStore) Watch() error {
	reloader, err := watch.NewReloader(s.path, reloadDebounce, func() {
		if err := s.reload(); err != nil {
			log.Printf("reloading training examples: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.reloader = reloader
	return nil
}

// Close stops the file watcher, if started.
func (s *FileStore) Close() {
	if s.reloader != nil {
		s.reloader.Stop()
	}
}

func (s *FileStore) reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.byTenant = map[string]map[string]string{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading training examples: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("parsing training examples: %s is not valid JSON", s.path)
	}

	byTenant := map[string]map[string]string{}
	gjson.ParseBytes(data).ForEach(func(tenant, examples gjson.Result) bool {
		m := map[string]string{}
		examples.ForEach(func(text, id gjson.Result) bool {
			m[strings.ToLower(text.String())] = id.String()
			return true
		})
		byTenant[tenant.String()] = m
		return true
	})

	s.mu.Lock()
	s.byTenant = byTenant
	s.mu.Unlock()
	return nil
}

// Examples returns the tenant's known examples. Unknown tenants get
// an empty map.
func (s *FileStore) Examples(
	_ context.Context, tenant string,
) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byTenant[tenant]
	if !ok {
		return map[string]string{}, nil
	}
	return m, nil
}
