package tools

import "fmt"

// Registry holds synthetic tools keyed by name. The chat orchestrator
// keeps one for its lifetime and offers every registered tool on every
// Chat call; the per-call search-tools instance is not registered here.
type Registry struct {
	tools map[string]SyntheticTool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]SyntheticTool)}
}

// Register adds a tool to the registry. Returns an error if a tool with
// the same name is already registered.
func (r *Registry) Register(tool SyntheticTool) error {
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("synthetic tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// MustRegister adds a tool and panics on error; used at process startup
// for the fixed set of built-in synthetic tools.
func (r *Registry) MustRegister(tool SyntheticTool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name, or nil if it isn't registered.
func (r *Registry) Get(name string) SyntheticTool {
	return r.tools[name]
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, exists := r.tools[name]
	return exists
}

// List returns every registered tool, order unspecified.
func (r *Registry) List() []SyntheticTool {
	result := make([]SyntheticTool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	return result
}

// Names returns the registered tool names, order unspecified.
func (r *Registry) Names() []string {
	result := make([]string, 0, len(r.tools))
	for name := range r.tools {
		result = append(result, name)
	}
	return result
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	return len(r.tools)
}
