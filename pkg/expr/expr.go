// Package expr compiles and evaluates CEL expressions used by rule
// conditions.
package expr

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// Environment provides a thread-safe wrapper around a [*cel.Env].
type Environment struct {
	env *cel.Env
}

// NewEnvironment creates a new [Environment]. Relative paths in library
// functions resolve against root.
func NewEnvironment(root string, opts ...cel.EnvOption) (*Environment, error) {
	env, err := createEnvironment(root, opts...)
	if err != nil {
		return nil, err
	}

	return &Environment{env: env}, nil
}

// MustNewEnvironment creates a new [Environment] and panics on error.
func MustNewEnvironment(root string, opts ...cel.EnvOption) *Environment {
	env, err := NewEnvironment(root, opts...)
	if err != nil {
		panic(err)
	}

	return env
}

// NewFactsEnvironment creates an [Environment] exposing a `facts` variable,
// a map of fact keys to resolved string values.
func NewFactsEnvironment(root string) (*Environment, error) {
	return NewEnvironment(root,
		cel.Variable("facts", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// MustNewFactsEnvironment creates a facts [Environment] and panics on error.
func MustNewFactsEnvironment(root string) *Environment {
	env, err := NewFactsEnvironment(root)
	if err != nil {
		panic(err)
	}

	return env
}

// createEnvironment creates the [*cel.Env] using the global mutex.
func createEnvironment(root string, opts ...cel.EnvOption) (*cel.Env, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	opts = append(opts, cel.Lib(lib{root: root}))

	celEnv, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return celEnv, nil
}

// Compile compiles a CEL expression and returns a program.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	return program, nil
}
