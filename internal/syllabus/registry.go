package syllabus

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/p-n-ai/pai-syllabus/internal/curriculum"
	"github.com/p-n-ai/pai-syllabus/internal/platform/kv"
)

// ProtocolsKey is the key-value entry holding the protocol list.
const ProtocolsKey = "syllabus.protocols"

// DefaultBuiltins are the protocols every registry starts with. The first
// one is the primary protocol.
var DefaultBuiltins = []string{"GATE", "PLACEMENT", "INTERVIEW"}

// Registry tracks the known protocol names and the active one. Built-in
// protocols always come first and can never be removed.
type Registry struct {
	store    kv.Store
	builtins []string
	names    []string
	active   string
}

// LoadRegistry restores the protocol list from store. A missing, unreadable
// or malformed entry yields the built-in list.
func LoadRegistry(ctx context.Context, store kv.Store, builtins []string) *Registry {
	if len(builtins) == 0 {
		builtins = DefaultBuiltins
	}
	r := &Registry{
		store:    store,
		builtins: slices.Clone(builtins),
	}
	r.names = r.merge(r.restore(ctx))
	r.active = r.builtins[0]
	return r
}

func (r *Registry) restore(ctx context.Context) []string {
	data, found, err := r.store.Get(ctx, ProtocolsKey)
	if err != nil {
		slog.Warn("reading protocol list failed, using builtins", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var saved []string
	if err := json.Unmarshal(data, &saved); err != nil {
		slog.Warn("malformed protocol list, using builtins", "error", err)
		return nil
	}
	return saved
}

// merge puts the built-ins first, then every other saved name in its saved
// order, normalized and without duplicates.
func (r *Registry) merge(saved []string) []string {
	names := slices.Clone(r.builtins)
	for _, raw := range saved {
		name := curriculum.ProtocolName(raw)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// List returns the protocol names, built-ins first.
func (r *Registry) List() []string {
	return slices.Clone(r.names)
}

// Deletable returns the user-created protocol names.
func (r *Registry) Deletable() []string {
	out := []string{}
	for _, name := range r.names {
		if !r.IsBuiltin(name) {
			out = append(out, name)
		}
	}
	return out
}

// Active returns the active protocol.
func (r *Registry) Active() string {
	return r.active
}

// IsBuiltin reports whether name is one of the fixed protocols.
func (r *Registry) IsBuiltin(name string) bool {
	return slices.Contains(r.builtins, name)
}

// Has reports whether name is a known protocol.
func (r *Registry) Has(name string) bool {
	return slices.Contains(r.names, name)
}

// Create normalizes raw and makes it the active protocol, registering it
// first if it is new. Blank names are ignored.
func (r *Registry) Create(ctx context.Context, raw string) {
	name := curriculum.ProtocolName(raw)
	if name == "" {
		return
	}
	if !r.Has(name) {
		r.names = append(r.names, name)
		r.persist(ctx)
	}
	r.active = name
}

// Delete removes a user-created protocol. Built-in and unknown names are
// ignored. Deleting the active protocol activates the first remaining one.
func (r *Registry) Delete(ctx context.Context, name string) {
	if r.IsBuiltin(name) || !r.Has(name) {
		return
	}
	r.names = slices.DeleteFunc(r.names, func(n string) bool { return n == name })
	r.persist(ctx)

	if r.active == name {
		if len(r.names) > 0 {
			r.active = r.names[0]
		} else {
			r.active = r.builtins[0]
		}
	}
}

// SetActive switches the active protocol. Unknown names are ignored.
func (r *Registry) SetActive(name string) bool {
	if !r.Has(name) {
		return false
	}
	r.active = name
	return true
}

func (r *Registry) persist(ctx context.Context) {
	data, err := json.Marshal(r.names)
	if err != nil {
		slog.Warn("encoding protocol list failed", "error", err)
		return
	}
	if err := r.store.Set(ctx, ProtocolsKey, data); err != nil {
		slog.Warn("persisting protocol list failed", "error", err)
	}
}
