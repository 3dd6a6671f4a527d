package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"m365prov/pkg/artifact"
	"m365prov/pkg/identity"
	"m365prov/pkg/scopes"
)

// Invocation is everything a handler gets for one run.
type Invocation struct {
	Path     string
	Artifact *artifact.Artifact
	Params   map[string]any
	Session  identity.Session
}

// Command is a statically linked handler an artifact names in `handler:`.
type Command interface {
	Name() string
	RequiredScopes(svc scopes.Service) scopes.Set
	Run(ctx context.Context, inv Invocation) (map[string]any, error)
}

// Registry holds the commands compiled into the binary.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry(cmds ...Command) (*Registry, error) {
	r := &Registry{commands: map[string]Command{}}
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[c.Name()]; ok {
		return fmt.Errorf("command %q already registered", c.Name())
	}
	r.commands[c.Name()] = c
	return nil
}

func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Names lists registered commands, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for n := range r.commands {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
