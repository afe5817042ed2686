package provision

import (
	"fmt"

	"github.com/acorn-pups/dbinfra"
)

// TableHandle identifies a provisioned table. Name is the physical table name and Identifier
// the ARN (or a deferred token for declarative providers). Handles are plain values.
type TableHandle struct {
	Entity      string `json:"entity" yaml:"entity"`
	Resource    string `json:"resource" yaml:"resource"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	Name        string `json:"name" yaml:"name"`
	Identifier  string `json:"identifier" yaml:"identifier"`
}

// Resolved reports whether both the name and the identifier are known.
func (h TableHandle) Resolved() bool {
	return h.Name != "" && h.Identifier != ""
}

// Handles is the ordered result of a provisioning run.
type Handles struct {
	order []string
	byKey map[string]TableHandle
}

// NewHandles builds a Handles from a list, preserving order. Later duplicates replace earlier ones.
func NewHandles(hs ...TableHandle) Handles {
	out := Handles{byKey: make(map[string]TableHandle, len(hs))}
	for _, h := range hs {
		out.add(h)
	}
	return out
}

func (h *Handles) add(th TableHandle) {
	if h.byKey == nil {
		h.byKey = map[string]TableHandle{}
	}
	if _, ok := h.byKey[th.Entity]; !ok {
		h.order = append(h.order, th.Entity)
	}
	h.byKey[th.Entity] = th
}

// Get returns the handle for entity.
func (h Handles) Get(entity string) (TableHandle, bool) {
	th, ok := h.byKey[entity]
	return th, ok
}

// All returns every handle in provisioning order.
func (h Handles) All() []TableHandle {
	out := make([]TableHandle, 0, len(h.order))
	for _, e := range h.order {
		out = append(out, h.byKey[e])
	}
	return out
}

// Len returns the number of handles.
func (h Handles) Len() int { return len(h.order) }

// RequireResolved returns an error naming the first entity in entities whose handle is
// missing or unresolved.
func (h Handles) RequireResolved(code string, entities []string) error {
	for _, e := range entities {
		th, ok := h.Get(e)
		if !ok {
			return dbinfra.NewError(code, e, "table handle is missing")
		}
		if !th.Resolved() {
			return dbinfra.NewError(code, e, fmt.Sprintf("table handle is unresolved (name=%q identifier=%q)", th.Name, th.Identifier))
		}
	}
	return nil
}
