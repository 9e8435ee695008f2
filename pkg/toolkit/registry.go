// Package toolkit holds the per-persona tool registry: a mapping from tool
// name to a capability record carrying its schema and an executable action.
// Resolution is a plain lookup; execution never lets a handler error or
// panic escape past the registry boundary.
package toolkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Parameter defines one input parameter of a tool.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Definition defines a tool's metadata and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Declaration is the wire form of a tool sent to the reasoning backend.
type Declaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Result is the outcome of one tool invocation. A failed invocation is an
// error-flagged Result, never a returned error: tool failures feed back
// into the conversation instead of aborting the turn.
type Result struct {
	Success bool        `json:"success"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Registry manages a persona's tools.
type Registry struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
	timeout time.Duration
	mu      sync.RWMutex
}

// Config holds registry configuration.
type Config struct {
	Logger  zerolog.Logger
	Timeout time.Duration // per-invocation handler timeout
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}
}

// Register validates and adds a tool.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	r.logger.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name, or nil.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Declarations builds wire declarations for the named tools. An unknown
// name is an error: a persona cannot declare a capability it doesn't own.
func (r *Registry) Declarations(names []string) ([]Declaration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]Declaration, 0, len(names))
	for _, name := range names {
		def := r.tools[name]
		if def == nil {
			return nil, fmt.Errorf("tool not found: %s", name)
		}
		decls = append(decls, Declaration{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(*def),
		})
	}
	return decls, nil
}

// Execute invokes a tool by name. Unknown tools, invalid arguments,
// handler errors, panics, and timeouts all produce an error-flagged Result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) Result {
	start := time.Now()

	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if def == nil {
		r.logger.Warn().Str("tool", name).Msg("Tool not found")
		return Result{Error: fmt.Sprintf("tool not found: %s", name)}
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if err := validateArgs(schema, args); err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("Argument validation failed")
		return Result{Error: fmt.Sprintf("argument validation failed: %v", err)}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outputCh := make(chan interface{}, 1)
	errCh := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errCh <- fmt.Errorf("tool panicked: %v", rec)
			}
		}()
		output, err := def.Handler(execCtx, args)
		if err != nil {
			errCh <- err
			return
		}
		outputCh <- output
	}()

	select {
	case output := <-outputCh:
		r.logger.Debug().
			Str("tool", name).
			Dur("duration", time.Since(start)).
			Msg("Tool execution completed")
		return Result{Success: true, Output: output}

	case err := <-errCh:
		r.logger.Warn().
			Str("tool", name).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Tool execution failed")
		return Result{Error: err.Error()}

	case <-execCtx.Done():
		r.logger.Warn().
			Str("tool", name).
			Dur("duration", time.Since(start)).
			Msg("Tool execution timed out")
		return Result{Error: fmt.Sprintf("tool execution timeout after %v", r.timeout)}
	}
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, p := range def.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[p.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", p.Type, p.Name)
		}
	}
	return nil
}

// inputSchema builds the JSON Schema object for a definition.
func inputSchema(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, p := range def.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	loader := gojsonschema.NewGoLoader(inputSchema(def))
	return gojsonschema.NewSchema(loader)
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}
