package params

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/acorn-pups/dbinfra"
)

// ErrParameterNotFound is returned by MemoryRegistry.GetParameter for unknown paths.
var ErrParameterNotFound = errors.New("parameter not found")

// MemoryRegistry is a process-local Registry and Reader. A path belongs to the first owner
// that writes it; the owner may overwrite it, anyone else gets a duplicate-path error.
type MemoryRegistry struct {
	mu     sync.RWMutex
	params map[string]Parameter
	writes int
}

var (
	_ Registry = (*MemoryRegistry)(nil)
	_ Reader   = (*MemoryRegistry)(nil)
)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{params: map[string]Parameter{}}
}

func (r *MemoryRegistry) PutParameter(ctx context.Context, p Parameter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.params[p.Path]; ok && existing.Owner != p.Owner {
		return dbinfra.NewError(dbinfra.ErrorCodeDuplicatePath, p.Path,
			fmt.Sprintf("duplicate parameter path, owned by %s", existing.Owner))
	}
	r.params[p.Path] = p
	r.writes++
	return nil
}

func (r *MemoryRegistry) GetParameter(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.params[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrParameterNotFound, path)
	}
	return p.Value, nil
}

// Parameter returns the full stored parameter.
func (r *MemoryRegistry) Parameter(path string) (Parameter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.params[path]
	return p, ok
}

// Paths returns every stored path, sorted.
func (r *MemoryRegistry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.params))
	for p := range r.params {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Writes returns the number of successful writes.
func (r *MemoryRegistry) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// MemoryExporter records exports in order and rejects an export name reused by another stack.
type MemoryExporter struct {
	mu      sync.Mutex
	exports []Export
	names   map[string]string
}

var _ Exporter = (*MemoryExporter)(nil)

func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{names: map[string]string{}}
}

func (e *MemoryExporter) Export(ctx context.Context, x Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if x.ExportName != "" {
		if owner, ok := e.names[x.ExportName]; ok && owner != x.Stack {
			return fmt.Errorf("export %s is already defined by %s", x.ExportName, owner)
		}
		e.names[x.ExportName] = x.Stack
	}
	e.exports = append(e.exports, x)
	return nil
}

// Exports returns every recorded export in order.
func (e *MemoryExporter) Exports() []Export {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Export(nil), e.exports...)
}
