package plugin

import (
	"sort"
	"sync"

	"github.com/Tsinling0525/canvasflow/model"
)

// FieldKind tells an editor how to render a config field.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldTextarea FieldKind = "textarea"
	FieldCode     FieldKind = "code"
	FieldNumber   FieldKind = "number"
	FieldSelect   FieldKind = "select"
	FieldJSON     FieldKind = "json"
)

type ConfigField struct {
	Name    string    `json:"name"`
	Label   string    `json:"label"`
	Kind    FieldKind `json:"kind"`
	Options []string  `json:"options,omitempty"`
	// Templated fields get {{token}} resolution before the handler runs.
	Templated bool `json:"templated,omitempty"`
}

// Definition is the static description of a node type.
type Definition struct {
	Type          model.NodeType `json:"type"`
	Category      model.Category `json:"category"`
	Label         string         `json:"label"`
	ConfigFields  []ConfigField  `json:"configFields"`
	DefaultConfig map[string]any `json:"defaultConfig"`
	// Branching types select outgoing edges through their "branch" output.
	Branching bool `json:"branching,omitempty"`
}

// TemplatedFields lists the names of fields that take {{token}} resolution.
func (d Definition) TemplatedFields() []string {
	var out []string
	for _, f := range d.ConfigFields {
		if f.Templated {
			out = append(out, f.Name)
		}
	}
	return out
}

// Registry maps node types to their definitions. It is read-only for the engine.
type Registry struct {
	mu   sync.RWMutex
	defs map[model.NodeType]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[model.NodeType]Definition, len(defs))}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

func (r *Registry) Register(d Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[d.Type] = d
}

func (r *Registry) Lookup(t model.NodeType) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[t]
	return d, ok
}

// List returns all definitions ordered by category, then type.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Type < out[j].Type
	})
	return out
}
