package agent

import (
	"fmt"
	"strings"
	"sync"
)

// Registry is the capability catalog used by the agent. Names are matched
// case-insensitively and must be unique; iteration follows registration order.
// Tools may additionally be grouped into categories.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]Tool
	specs         map[string]ToolSpec
	order         []string
	categories    map[string][]string
	categoryOrder []string
}

// NewRegistry constructs a registry seeded with the provided tools. Each tool
// is filed under the category declared in its spec.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:      make(map[string]Tool),
		specs:      make(map[string]ToolSpec),
		categories: make(map[string][]string),
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a tool under its spec category plus any extra categories.
// Duplicate names return an error.
func (r *Registry) Register(tool Tool, categories ...string) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	spec := tool.Spec()
	key := registryKey(spec.Name)
	if key == "" {
		return fmt.Errorf("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[key]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	r.tools[key] = tool
	r.specs[key] = spec
	r.order = append(r.order, key)

	if spec.Category != "" {
		categories = append([]string{spec.Category}, categories...)
	}
	seen := make(map[string]bool, len(categories))
	for _, cat := range categories {
		cat = strings.TrimSpace(cat)
		if cat == "" || seen[cat] {
			continue
		}
		seen[cat] = true
		if _, ok := r.categories[cat]; !ok {
			r.categoryOrder = append(r.categoryOrder, cat)
		}
		r.categories[cat] = append(r.categories[cat], key)
	}
	return nil
}

// Lookup returns the tool and its specification if present.
func (r *Registry) Lookup(name string) (Tool, ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := registryKey(name)
	tool, ok := r.tools[key]
	if !ok {
		return nil, ToolSpec{}, false
	}
	return tool, r.specs[key], true
}

// Specs returns a snapshot of the tool specifications in registration order.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(r.order))
	for _, key := range r.order {
		specs = append(specs, r.specs[key])
	}
	return specs
}

// Tools returns the registered tools in order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, key := range r.order {
		tools = append(tools, r.tools[key])
	}
	return tools
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Categories returns category names in first-seen order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.categoryOrder...)
}

// ByCategory returns the tools filed under category in registration order.
func (r *Registry) ByCategory(category string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.categories[strings.TrimSpace(category)]
	tools := make([]Tool, 0, len(keys))
	for _, key := range keys {
		tools = append(tools, r.tools[key])
	}
	return tools
}

// Subset builds a new registry holding only the tools of the given categories,
// keeping registration order. With no categories it returns r itself.
func (r *Registry) Subset(categories ...string) *Registry {
	if len(categories) == 0 {
		return r
	}
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[strings.TrimSpace(c)] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	picked := make(map[string]bool)
	for cat, keys := range r.categories {
		if !want[cat] {
			continue
		}
		for _, key := range keys {
			picked[key] = true
		}
	}

	sub := &Registry{
		tools:      make(map[string]Tool),
		specs:      make(map[string]ToolSpec),
		categories: make(map[string][]string),
	}
	for _, key := range r.order {
		if !picked[key] {
			continue
		}
		sub.tools[key] = r.tools[key]
		sub.specs[key] = r.specs[key]
		sub.order = append(sub.order, key)
	}
	for _, cat := range r.categoryOrder {
		if !want[cat] {
			continue
		}
		sub.categoryOrder = append(sub.categoryOrder, cat)
		sub.categories[cat] = append([]string(nil), r.categories[cat]...)
	}
	return sub
}
