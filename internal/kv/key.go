// Package kv implements sid's versioned, namespaced, transactional
// key-value store: the key grammar, the record model, the store with
// its ownership-policy callbacks, and the vector delta engine.
package kv

import (
	"fmt"
	"strings"
)

// Op is the mutation verb encoded as the first key field. Besides
// selecting SET/PLUS/MINUS semantics for the delta engine, the two
// delta verbs double as distinct key namespaces: the "+" and "-" forms
// of a relation key hold that key's cumulative abs_delta ledgers
// (see delta.go).
type Op byte

const (
	OpSet Op = iota
	OpPlus
	OpMinus
	OpIllegal
)

var opCodes = [...]string{"", "+", "-", "X"}

func (o Op) code() string {
	if int(o) < len(opCodes) {
		return opCodes[o]
	}
	return "X"
}

// ParseOp maps a single-character key-grammar code back to an Op.
func ParseOp(code string) (Op, error) {
	switch code {
	case "":
		return OpSet, nil
	case "+":
		return OpPlus, nil
	case "-":
		return OpMinus, nil
	case "X":
		return OpIllegal, nil
	default:
		return OpIllegal, fmt.Errorf("kv: invalid op code %q", code)
	}
}

// Namespace is the closed set of visibility scopes a record can live in.
type Namespace byte

const (
	NamespaceUndefined Namespace = iota
	NamespaceUdev
	NamespaceDevice
	NamespaceModule
	NamespaceGlobal
)

var namespaceCodes = [...]string{"", "U", "D", "M", "G"}

func (n Namespace) code() string {
	if int(n) < len(namespaceCodes) {
		return namespaceCodes[n]
	}
	return ""
}

// ParseNamespace maps a single-character key-grammar code back to a Namespace.
func ParseNamespace(code string) (Namespace, error) {
	switch code {
	case "":
		return NamespaceUndefined, nil
	case "U":
		return NamespaceUdev, nil
	case "D":
		return NamespaceDevice, nil
	case "M":
		return NamespaceModule, nil
	case "G":
		return NamespaceGlobal, nil
	default:
		return NamespaceUndefined, fmt.Errorf("kv: invalid namespace code %q", code)
	}
}

func (n Namespace) String() string {
	switch n {
	case NamespaceUdev:
		return "UDEV"
	case NamespaceDevice:
		return "DEVICE"
	case NamespaceModule:
		return "MODULE"
	case NamespaceGlobal:
		return "GLOBAL"
	default:
		return "UNDEFINED"
	}
}

// KeySpec is the structured, seven-field form of a key (spec.md §3.2).
type KeySpec struct {
	Op            Op
	Domain        string
	Namespace     Namespace
	NamespacePart string
	ID            string
	IDPart        string
	Core          string
}

// Part identifies one of the seven key-grammar fields, for ParsePart.
type Part int

const (
	PartOp Part = iota
	PartDomain
	PartNamespace
	PartNamespacePart
	PartID
	PartIDPart
	PartCore
)

// Compose renders a KeySpec as the joined `<op>:<domain>:<namespace>:
// <ns-part>:<id>:<id-part>:<core>` string.
func Compose(spec KeySpec) string {
	return strings.Join([]string{
		spec.Op.code(),
		spec.Domain,
		spec.Namespace.code(),
		spec.NamespacePart,
		spec.ID,
		spec.IDPart,
		spec.Core,
	}, ":")
}

// ComposePrefix renders a KeySpec without its core field, including the
// trailing separator, so that ComposePrefix(spec)+anyCore == Compose for
// the matching spec. Used for prefix-bounded iteration and for encoding
// a key as a relation-vector item (the "prefix of the current key").
func ComposePrefix(spec KeySpec) string {
	return strings.Join([]string{
		spec.Op.code(),
		spec.Domain,
		spec.Namespace.code(),
		spec.NamespacePart,
		spec.ID,
		spec.IDPart,
	}, ":") + ":"
}

// Parse splits a rendered key string back into its seven fields.
func Parse(key string) (KeySpec, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 7 {
		return KeySpec{}, fmt.Errorf("kv: malformed key %q: want 7 fields, got %d", key, len(parts))
	}
	op, err := ParseOp(parts[0])
	if err != nil {
		return KeySpec{}, err
	}
	ns, err := ParseNamespace(parts[2])
	if err != nil {
		return KeySpec{}, err
	}
	return KeySpec{
		Op:            op,
		Domain:        parts[1],
		Namespace:     ns,
		NamespacePart: parts[3],
		ID:            parts[4],
		IDPart:        parts[5],
		Core:          parts[6],
	}, nil
}

// ParsePrefix splits a rendered key-prefix string (as produced by
// ComposePrefix, i.e. with a trailing separator and no core field) back
// into its six non-core fields.
func ParsePrefix(prefix string) (KeySpec, error) {
	parts := strings.Split(prefix, ":")
	if len(parts) != 7 || parts[6] != "" {
		return KeySpec{}, fmt.Errorf("kv: malformed key prefix %q", prefix)
	}
	op, err := ParseOp(parts[0])
	if err != nil {
		return KeySpec{}, err
	}
	ns, err := ParseNamespace(parts[2])
	if err != nil {
		return KeySpec{}, err
	}
	return KeySpec{
		Op:            op,
		Domain:        parts[1],
		Namespace:     ns,
		NamespacePart: parts[3],
		ID:            parts[4],
		IDPart:        parts[5],
	}, nil
}

// ParsePart returns the requested field of a rendered key and its length.
func ParsePart(key string, part Part) (string, int, error) {
	spec, err := Parse(key)
	if err != nil {
		return "", 0, err
	}
	var v string
	switch part {
	case PartOp:
		v = spec.Op.code()
	case PartDomain:
		v = spec.Domain
	case PartNamespace:
		v = spec.Namespace.code()
	case PartNamespacePart:
		v = spec.NamespacePart
	case PartID:
		v = spec.ID
	case PartIDPart:
		v = spec.IDPart
	case PartCore:
		v = spec.Core
	default:
		return "", 0, fmt.Errorf("kv: invalid key part %d", part)
	}
	return v, len(v), nil
}

// WithOp returns a copy of spec with its Op field replaced; used to move
// between a relation key and its "+"/"-" abs_delta ledger siblings.
func (spec KeySpec) WithOp(op Op) KeySpec {
	spec.Op = op
	return spec
}

// WithCore returns a copy of spec with its Core field replaced.
func (spec KeySpec) WithCore(core string) KeySpec {
	spec.Core = core
	return spec
}
