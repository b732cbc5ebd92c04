package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stockpilot/trigger-engine/memory"
)

// Deps carries the shared backends a tool factory may need.
type Deps struct {
	Catalog *Catalog
	Memory  memory.Store
}

type Factory func(deps Deps) Tool

type Bundle struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools"`
}

type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

var (
	regMu         sync.RWMutex
	toolFactories = map[string]Factory{}
	toolDescs     = map[string]string{}
	bundles       = map[string]Bundle{}
)

func RegisterTool(name, description string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if factory == nil {
		return fmt.Errorf("tool factory is required")
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := toolFactories[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	toolFactories[name] = factory
	toolDescs[name] = strings.TrimSpace(description)
	return nil
}

func MustRegisterTool(name, description string, factory Factory) {
	if err := RegisterTool(name, description, factory); err != nil {
		panic(err)
	}
}

func RegisterBundle(name, description string, toolNames []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("bundle name is required")
	}
	cleaned := make([]string, 0, len(toolNames))
	for _, t := range toolNames {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return fmt.Errorf("bundle %q has no tools", name)
	}

	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := bundles[name]; exists {
		return fmt.Errorf("bundle %q already registered", name)
	}
	bundles[name] = Bundle{Name: name, Description: strings.TrimSpace(description), Tools: cleaned}
	return nil
}

func MustRegisterBundle(name, description string, toolNames []string) {
	if err := RegisterBundle(name, description, toolNames); err != nil {
		panic(err)
	}
}

func ToolNames() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(toolFactories))
	for n := range toolFactories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func BundleNames() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(bundles))
	for n := range bundles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func RegistryCatalog() []ToolInfo {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]ToolInfo, 0, len(toolFactories))
	for name := range toolFactories {
		out = append(out, ToolInfo{
			Name:        name,
			Description: toolDescs[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func BundleCatalog() []Bundle {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]Bundle, 0, len(bundles))
	for _, bundle := range bundles {
		clone := Bundle{
			Name:        bundle.Name,
			Description: bundle.Description,
			Tools:       append([]string(nil), bundle.Tools...),
		}
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuildSelection instantiates the named tools with shared dependencies.
// Entries may be tool names, @bundle references, or "*" for everything.
func BuildSelection(deps Deps, selection []string) (*Set, error) {
	names, err := expandSelection(selection)
	if err != nil {
		return nil, err
	}

	regMu.RLock()
	defer regMu.RUnlock()
	set := &Set{tools: make(map[string]Tool, len(names)), order: names}
	for _, name := range names {
		factory, ok := toolFactories[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		tool := factory(deps)
		if tool == nil {
			return nil, fmt.Errorf("tool %q factory returned nil", name)
		}
		set.tools[name] = tool
	}
	return set, nil
}

func expandSelection(selection []string) ([]string, error) {
	regMu.RLock()
	defer regMu.RUnlock()

	ordered := make([]string, 0, len(selection))
	seen := map[string]bool{}

	appendName := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		ordered = append(ordered, name)
	}

	for _, raw := range selection {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "@") {
			bundleName := strings.TrimPrefix(entry, "@")
			bundle, ok := bundles[bundleName]
			if !ok {
				return nil, fmt.Errorf("unknown tool bundle %q", bundleName)
			}
			for _, n := range bundle.Tools {
				appendName(n)
			}
			continue
		}
		if entry == "*" {
			all := make([]string, 0, len(toolFactories))
			for n := range toolFactories {
				all = append(all, n)
			}
			sort.Strings(all)
			for _, n := range all {
				appendName(n)
			}
			continue
		}
		appendName(entry)
	}

	return ordered, nil
}

// Set is a built collection of tools sharing one catalog and preference
// store. The engine resolves and executes tools through it.
type Set struct {
	tools map[string]Tool
	order []string
}

// NewSet builds a set from already-instantiated tools.
func NewSet(tools ...Tool) *Set {
	set := &Set{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Definition().Name
		if _, exists := set.tools[name]; exists {
			continue
		}
		set.tools[name] = t
		set.order = append(set.order, name)
	}
	return set
}

// Get resolves a tool by name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Definitions lists the definitions of every tool in registration order.
func (s *Set) Definitions() []Definition {
	out := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].Definition())
	}
	return out
}

// EstimateValue returns the monetary value of a proposed call when the tool
// can price it, otherwise 0.
func (s *Set) EstimateValue(name string, args json.RawMessage) float64 {
	t, ok := s.tools[name]
	if !ok {
		return 0
	}
	if estimator, ok := t.(ValueEstimator); ok {
		return estimator.EstimateValue(args)
	}
	return 0
}

// Execute validates args against the tool's schema and runs it.
func (s *Set) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	if err := ValidateArgs(t.Definition(), args); err != nil {
		return nil, err
	}
	return t.Execute(ctx, args)
}
