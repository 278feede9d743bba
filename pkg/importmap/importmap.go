// Package importmap models layered import maps: composing documents into a
// resolved map and resolving specifiers against a parent URL.
package importmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrUnresolved is matched by every *UnresolvedSpecifierError.
var ErrUnresolved = errors.New("unresolved specifier")

// ErrOverride is matched by every *MapOverrideConflictError.
var ErrOverride = errors.New("rejected map override")

// UnresolvedSpecifierError reports a specifier that no mapping resolves, or
// one whose mapping blocks it.
type UnresolvedSpecifierError struct {
	Specifier string
	Parent    string
	Blocked   bool
}

func (e *UnresolvedSpecifierError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("specifier %q is blocked by the import map (imported from %s)", e.Specifier, e.Parent)
	}

	return fmt.Sprintf("unable to resolve specifier %q imported from %s", e.Specifier, e.Parent)
}

// Is reports ErrUnresolved.
func (e *UnresolvedSpecifierError) Is(target error) bool { return target == ErrUnresolved }

// MapOverrideConflictError reports a composition that would replace an
// existing mapping with a different target.
type MapOverrideConflictError struct {
	Key   string
	Scope string
	From  Target
	To    Target
}

func (e *MapOverrideConflictError) Error() string {
	where := "imports"
	if e.Scope != "" {
		where = "scope " + e.Scope
	}

	return fmt.Sprintf("rejected map override %q in %s from %s to %s", e.Key, where, e.From, e.To)
}

// Is reports ErrOverride.
func (e *MapOverrideConflictError) Is(target error) bool { return target == ErrOverride }

// Target is a mapped value: a resolved URL or the blocked sentinel.
type Target struct {
	URL     string
	Blocked bool
}

// Blocked is the target of a null mapping. Resolution through it fails.
var Blocked = Target{Blocked: true}

// URL returns a target mapping to u.
func URL(u string) Target { return Target{URL: u} }

func (t Target) String() string {
	if t.Blocked {
		return "null"
	}

	return t.URL
}

// MarshalJSON encodes blocked targets as null.
func (t Target) MarshalJSON() ([]byte, error) {
	if t.Blocked {
		return []byte("null"), nil
	}

	return json.Marshal(t.URL)
}

// Packages maps specifier prefixes to targets.
type Packages map[string]Target

// ImportMap is a composed, fully resolved import map.
type ImportMap struct {
	Imports Packages            `json:"imports"`
	Scopes  map[string]Packages `json:"scopes"`
}

// New returns an empty import map.
func New() *ImportMap {
	return &ImportMap{Imports: Packages{}, Scopes: map[string]Packages{}}
}

// Clone returns a deep copy of m. A nil map clones to an empty one.
func (m *ImportMap) Clone() *ImportMap {
	out := New()
	if m == nil {
		return out
	}

	maps.Copy(out.Imports, m.Imports)

	for scope, pkgs := range m.Scopes {
		out.Scopes[scope] = maps.Clone(pkgs)
	}

	return out
}

// Len returns the number of mappings across imports and scopes.
func (m *ImportMap) Len() int {
	if m == nil {
		return 0
	}

	n := len(m.Imports)
	for _, pkgs := range m.Scopes {
		n += len(pkgs)
	}

	return n
}
