package factory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

var (
	// ErrUnknownType is returned by Create for a type with no factory.
	ErrUnknownType = errors.New("unknown module type")
	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("module type already registered")
)

// ModuleConfig names a module type and carries its raw settings.
type ModuleConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Factory builds a T from raw settings.
type Factory[T any] func(conf map[string]any) (T, error)

// Registry maps type names to factories. It is safe for concurrent use.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]Factory[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]Factory[T])}
}

// Register binds name to f.
func (r *Registry[T]) Register(name string, f Factory[T]) error {
	switch {
	case name == "":
		return errors.New("register module: empty type name")
	case f == nil:
		return fmt.Errorf("register %q: nil factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.items[name]; dup {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateType)
	}
	r.items[name] = f
	return nil
}

// Create runs the factory registered for cfg.Type.
func (r *Registry[T]) Create(cfg ModuleConfig) (T, error) {
	r.mu.RLock()
	f, ok := r.items[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w %q (known: %s)", ErrUnknownType, cfg.Type, strings.Join(r.Names(), ", "))
	}
	conf := cfg.Conf
	if conf == nil {
		conf = map[string]any{}
	}
	return f(conf)
}

// Names lists the registered types, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for n := range r.items {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Decode copies raw settings into out using json tags. Numbers and strings
// are converted where unambiguous; keys out does not declare are an error so
// typos in a sink block surface at startup.
func Decode(conf map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("module config decoder: %w", err)
	}
	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("decode module config: %w", err)
	}
	return nil
}
