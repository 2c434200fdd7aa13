// Package catalog maps fully-qualified class names to class types.
//
// The catalog is the boundary with whatever discovers managed classes: the
// compiler only ever asks it for names it was told to scan.
package catalog

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// Catalog is a name to class-type registry.
//
// Thread-safety: all methods are safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{types: make(map[string]reflect.Type)}
}

// Register adds the classes of prototypes, each a pointer to a struct.
// Registering the same class twice is a no-op.
func (c *Catalog) Register(prototypes ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range prototypes {
		t := reflect.TypeOf(p)
		if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("catalog: %T is not a pointer to a struct", p)
		}
		name := index.QualifiedName(t)
		if existing, ok := c.types[name]; ok && existing != t {
			return fmt.Errorf("catalog: %s registered with two types", name)
		}
		c.types[name] = t
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(prototypes ...any) {
	if err := c.Register(prototypes...); err != nil {
		panic(err)
	}
}

// Lookup returns the pointer type registered under name.
func (c *Catalog) Lookup(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

// Resolve returns the registered name matching name: either the
// fully-qualified name itself or, when exactly one class has it, the bare
// type name.
func (c *Catalog) Resolve(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.types[name]; ok {
		return name, nil
	}
	var found []string
	for full, t := range c.types {
		if t.Elem().Name() == name {
			found = append(found, full)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("catalog: unknown class %s", name)
	case 1:
		return found[0], nil
	}
	sort.Strings(found)
	return "", fmt.Errorf("catalog: class %s is ambiguous: %s", name, strings.Join(found, ", "))
}

// Names returns every registered class name in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New allocates a fresh instance of the named class.
func (c *Catalog) New(name string) (any, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("catalog: unknown class %s", name)
	}
	return reflect.New(t.Elem()).Interface(), nil
}
