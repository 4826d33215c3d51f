// Package module defines the block/type module contract the scan
// dispatcher runs, and the hierarchical registries that hold them.
// spec.md §1 places the dynamic-library loader itself out of scope
// ("the core only consumes a symbol table per module"); this package is
// that symbol table, with in-tree modules under builtin/ standing in
// for what would otherwise be dlopen'd .so modules.
package module

import (
	"fmt"
	"sort"

	"github.com/sidproject/sid/internal/cmdctx"
)

// Phase is one step of the scan state machine (spec.md §4.4).
type Phase int

const (
	PhaseInit Phase = iota
	PhaseIdent
	PhaseScanPre
	PhaseScanCurrent
	PhaseScanNext
	PhaseScanPostCurrent
	PhaseScanPostNext
	PhaseWaiting
	PhaseExit
	PhaseTriggerActionCurrent
	PhaseTriggerActionNext
	PhaseError
)

func (p Phase) String() string {
	names := [...]string{
		"INIT", "IDENT", "SCAN_PRE", "SCAN_CURRENT", "SCAN_NEXT",
		"SCAN_POST_CURRENT", "SCAN_POST_NEXT", "WAITING", "EXIT",
		"TRIGGER_ACTION_CURRENT", "TRIGGER_ACTION_NEXT", "ERROR",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return "UNKNOWN"
}

// Block is a block-level module: runs in every phase, in registration
// order, may omit the identifying symbol (it does not claim IDENT).
type Block interface {
	Name() string
	Run(phase Phase, ctx *cmdctx.Context) error
}

// Type is a type-specific module: resolved once per phase as "current"
// or "next", must provide an identifying symbol so IDENT can claim a
// device by its derived module name (internal/moddb).
type Type interface {
	Name() string
	Run(phase Phase, ctx *cmdctx.Context) error
}

// BlockRegistry holds block modules in registration order, the order
// the dispatcher iterates them in per phase (spec.md §4.4).
type BlockRegistry struct {
	order []string
	mods  map[string]Block
}

// NewBlockRegistry returns an empty block-module registry.
func NewBlockRegistry() *BlockRegistry {
	return &BlockRegistry{mods: make(map[string]Block)}
}

// Register adds a block module, appending it to iteration order.
func (r *BlockRegistry) Register(m Block) error {
	if _, exists := r.mods[m.Name()]; exists {
		return fmt.Errorf("module: block module %q already registered", m.Name())
	}
	r.mods[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// All returns every registered block module, in registration order.
func (r *BlockRegistry) All() []Block {
	out := make([]Block, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.mods[name])
	}
	return out
}

// Len reports how many block modules are registered.
func (r *BlockRegistry) Len() int { return len(r.order) }

// TypeRegistry holds type modules looked up by name (the module name
// internal/moddb derives for a device).
type TypeRegistry struct {
	mods map[string]Type
}

// NewTypeRegistry returns an empty type-module registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{mods: make(map[string]Type)}
}

// Register adds a type module.
func (r *TypeRegistry) Register(m Type) error {
	if _, exists := r.mods[m.Name()]; exists {
		return fmt.Errorf("module: type module %q already registered", m.Name())
	}
	r.mods[m.Name()] = m
	return nil
}

// Lookup resolves a type module by name.
func (r *TypeRegistry) Lookup(name string) (Type, bool) {
	m, ok := r.mods[name]
	return m, ok
}

// Names returns every registered type module name, sorted, for the
// resources/dbdump listings.
func (r *TypeRegistry) Names() []string {
	out := make([]string, 0, len(r.mods))
	for name := range r.mods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
