package tool

import (
	"fmt"
	"log/slog"
	"sync"

	"finassist/internal/domain"
)

// Compile-time interface check.
var _ domain.ToolExecutor = (*Registry)(nil)

// Registry holds named tools.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]domain.Tool
	logger   *slog.Logger
	validate bool
}

// NewRegistry creates an empty tool registry. When validate is true, tools
// are wrapped with JSON Schema validation on Register; compilation errors
// are logged and the tool is registered unwrapped.
func NewRegistry(logger *slog.Logger, validate bool) *Registry {
	return &Registry{
		tools:    make(map[string]domain.Tool),
		logger:   logger,
		validate: validate,
	}
}

// Register adds a tool. Returns an error if the name is already taken.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput,
			fmt.Sprintf("tool %q already registered", name))
	}

	if r.validate {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool",
				"tool", name, "error", err)
		} else {
			t = wrapped
		}
	}

	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Schemas returns all tool schemas for LLM function-calling.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}
