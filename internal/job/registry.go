package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrCallableNotFound = errors.New("callable not registered")
	ErrBadArguments     = errors.New("arguments do not match callable")
)

// Handler is the invocable side of a callable. Workers run it; the master
// only needs the signature.
type Handler func(ctx context.Context, args []any, kwargs map[string]any) error

// Signature describes the arguments a callable accepts.
type Signature struct {
	// Params are positional-or-keyword parameter names, in order.
	Params []string
	// Required is how many leading Params must be supplied.
	Required  int
	VarArgs   bool
	VarKwargs bool
}

// Callable is a registered reference together with its handler.
type Callable struct {
	Ref       string
	Handler   Handler
	Signature Signature
}

// CheckArgs validates args and kwargs against the signature
func (s Signature) CheckArgs(args []any, kwargs map[string]any) error {
	if len(args) > len(s.Params) && !s.VarArgs {
		return fmt.Errorf("%w: takes at most %d positional arguments (%d given)", ErrBadArguments, len(s.Params), len(args))
	}
	for name := range kwargs {
		idx := s.index(name)
		switch {
		case idx >= 0 && idx < len(args):
			return fmt.Errorf("%w: got multiple values for argument %q", ErrBadArguments, name)
		case idx < 0 && !s.VarKwargs:
			return fmt.Errorf("%w: unexpected keyword argument %q", ErrBadArguments, name)
		}
	}
	var missing []string
	for i := len(args); i < s.Required && i < len(s.Params); i++ {
		if _, ok := kwargs[s.Params[i]]; !ok {
			missing = append(missing, s.Params[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required arguments: %s", ErrBadArguments, strings.Join(missing, ", "))
	}
	return nil
}

func (s Signature) index(name string) int {
	for i, p := range s.Params {
		if p == name {
			return i
		}
	}
	return -1
}

// Registry maps string references to callables. It is populated at startup.
type Registry struct {
	mu        sync.RWMutex
	callables map[string]Callable
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		callables: make(map[string]Callable),
	}
}

// Register adds a callable under ref. A nil handler registers the signature
// only, which is enough for the master to validate submissions.
func (r *Registry) Register(ref string, handler Handler, sig Signature) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errors.New("callable reference required")
	}
	if sig.Required > len(sig.Params) {
		return fmt.Errorf("callable %s: %d required params but only %d declared", ref, sig.Required, len(sig.Params))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callables[ref]; ok {
		return fmt.Errorf("callable %s already registered", ref)
	}
	r.callables[ref] = Callable{Ref: ref, Handler: handler, Signature: sig}
	return nil
}

// Resolve returns the callable registered under ref
func (r *Registry) Resolve(ref string) (*Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callables[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCallableNotFound, ref)
	}
	return &c, nil
}

// Len returns the number of registered callables
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callables)
}
