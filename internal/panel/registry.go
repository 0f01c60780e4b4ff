package panel

import (
	"fmt"
	"sync"
)

// Info is the listing shape for one panel.
type Info struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Running bool   `json:"running"`
}

// Registry holds panels by id in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	panels map[string]Panel
}

func NewRegistry() *Registry {
	return &Registry{panels: map[string]Panel{}}
}

// Catalog lists the built-in panels without constructing them.
func Catalog() []Info {
	return []Info{
		{ID: IDJira, Title: TitleJira},
		{ID: IDCoder, Title: TitleCoder},
		{ID: IDJenkins, Title: TitleJenkins},
	}
}

// NewDefaultRegistry registers the jira, coder and jenkins panels.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	r := NewRegistry()
	for _, p := range []Panel{NewJira(deps), NewCoder(deps), NewJenkins(deps)} {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(p Panel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.panels[p.ID()]; exists {
		return fmt.Errorf("panel %q already registered", p.ID())
	}
	r.panels[p.ID()] = p
	r.order = append(r.order, p.ID())
	return nil
}

func (r *Registry) Get(id string) (Panel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.panels[id]
	return p, ok
}

func (r *Registry) List() []Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Panel, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.panels[id])
	}
	return out
}

func (r *Registry) Infos() []Info {
	panels := r.List()
	out := make([]Info, 0, len(panels))
	for _, p := range panels {
		out = append(out, Info{ID: p.ID(), Title: p.Title(), Running: p.IsRunning()})
	}
	return out
}

// Dispose disposes every panel in reverse registration order.
func (r *Registry) Dispose() {
	panels := r.List()
	for i := len(panels) - 1; i >= 0; i-- {
		panels[i].Dispose()
	}
}
