package endpoint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/udit-pandey/kairon/internal/watch"
)

const reloadDebounce = 500 * time.Millisecond

// Resolver maps tenant ids to endpoint descriptors. Tenant-specific
// configuration comes from a JSON file; tenants without an entry
// fall back to the process-wide default local descriptor.
type Resolver struct {
	path string
	def  Descriptor

	mu      sync.RWMutex
	tenants map[string]Descriptor

	reloader *watch.Reloader
}

// NewResolver loads the tenant configuration file at path and
// returns a resolver whose fallback is def. A missing file is not
// an error; every tenant then resolves to the default. The default
// descriptor must itself be valid.
func NewResolver(path string, def Descriptor) (*Resolver, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("default endpoint: %w", err)
	}
	r := &Resolver{path: path, def: def}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Watch reloads the tenant file when it changes on disk. Call Close
// to stop watching.
func (r *Resolver) Watch() error {
	reloader, err := watch.NewReloader(r.path, reloadDebounce, func() {
		if err := r.reload(); err != nil {
			log.Printf("reloading tenant endpoints: %v", err)
		}
	})
	if err != nil {
		return err
	}
	r.reloader = reloader
	return nil
}

// Close stops the file watcher, if started.
func (r *Resolver) Close() {
	if r.reloader != nil {
		r.reloader.Stop()
	}
}

func (r *Resolver) reload() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.mu.Lock()
		r.tenants = map[string]Descriptor{}
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading tenant endpoints: %w", err)
	}

	tenants := map[string]Descriptor{}
	if err := json.Unmarshal(data, &tenants); err != nil {
		return fmt.Errorf("parsing tenant endpoints: %w", err)
	}

	r.mu.Lock()
	r.tenants = tenants
	r.mu.Unlock()
	return nil
}

// Resolve returns the endpoint descriptor for a tenant. A stored
// descriptor that fails validation surfaces ErrConfiguration rather
// than silently falling back; absence of configuration falls back
// to the default.
func (r *Resolver) Resolve(tenant string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.tenants[tenant]
	r.mu.RUnlock()

	if !ok {
		return r.def, nil
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("tenant %s: %w", tenant, err)
	}
	return d, nil
}

// Save validates and persists a tenant's descriptor, then updates
// the in-memory cache. The file is read-modify-written so entries
// edited out-of-band are preserved.
func (r *Resolver) Save(tenant string, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := map[string]Descriptor{}
	data, err := os.ReadFile(r.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading tenant endpoints: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("existing tenant file invalid: %w", err)
		}
	}

	existing[tenant] = d
	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tenant endpoints: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(r.path, out, 0o600); err != nil {
		return fmt.Errorf("writing tenant endpoints: %w", err)
	}

	r.tenants = existing
	return nil
}
