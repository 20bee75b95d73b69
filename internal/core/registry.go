package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ColumnType is the storage type of an entity column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnDate
	ColumnRef
)

// Column describes one persisted attribute of an entity.
type Column struct {
	Name       string
	Type       ColumnType
	Normalizer func(string) string // applied to string values before storage and lookup
}

// EntityInfo names an entity and its backing table.
type EntityInfo struct {
	Kind  Kind
	Table string
	Label string
}

// EntityDefinition is everything a store needs to persist one entity kind.
type EntityDefinition struct {
	Info      EntityInfo
	Columns   []Column
	UniqueKey []string // column(s) enforced unique by the store
}

// Column returns the column named name.
func (d EntityDefinition) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Normalize returns a copy of attrs with column normalizers applied. Unknown
// columns are rejected so that callers cannot write outside the definition.
func (d EntityDefinition) Normalize(attrs Attrs) (Attrs, error) {
	out := make(Attrs, len(attrs))
	for name, v := range attrs {
		col, ok := d.Column(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown column %q", d.Info.Kind, name)
		}
		if s, isStr := v.(string); isStr && col.Normalizer != nil {
			v = col.Normalizer(s)
		}
		out[name] = v
	}
	return out, nil
}

// HasKey reports whether attrs carries every unique key column.
func (d EntityDefinition) HasKey(attrs Attrs) bool {
	for _, k := range d.UniqueKey {
		if _, ok := attrs[k]; !ok {
			return false
		}
	}
	return true
}

// SortedColumns returns the names in attrs ordered by their position in the
// definition, which keeps generated SQL stable.
func (d EntityDefinition) SortedColumns(attrs Attrs) []string {
	pos := make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		pos[c.Name] = i
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, iok := pos[names[i]]
		pj, jok := pos[names[j]]
		if iok != jok {
			return iok
		}
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

var (
	registry   = make(map[Kind]EntityDefinition)
	registryMu sync.RWMutex
)

// Register adds an entity definition to the registry.
// Panics if the kind is already registered or the definition is malformed.
func Register(def EntityDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Kind]; exists {
		panic(fmt.Sprintf("entity already registered: %s", def.Info.Kind))
	}
	if def.Info.Table == "" || len(def.UniqueKey) == 0 {
		panic(fmt.Sprintf("entity %s: table and unique key are required", def.Info.Kind))
	}
	for _, k := range def.UniqueKey {
		if _, ok := def.Column(k); !ok {
			panic(fmt.Sprintf("entity %s: unique key column %q not defined", def.Info.Kind, k))
		}
	}

	registry[def.Info.Kind] = def
}

// Get returns the definition for kind.
func Get(kind Kind) (EntityDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// MustGet is Get for callers that treat an unregistered kind as a bug.
func MustGet(kind Kind) EntityDefinition {
	def, ok := Get(kind)
	if !ok {
		panic(fmt.Sprintf("entity not registered: %s", kind))
	}
	return def
}

// Lookup returns the definition for kind or an error naming the registered kinds.
func Lookup(kind Kind) (EntityDefinition, error) {
	if def, ok := Get(kind); ok {
		return def, nil
	}
	names := make([]string, 0)
	for _, d := range All() {
		names = append(names, string(d.Info.Kind))
	}
	return EntityDefinition{}, fmt.Errorf("unknown entity kind %q (registered: %s)", kind, strings.Join(names, ", "))
}

// All returns all registered definitions in dependency order.
func All() []EntityDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	order := make(map[Kind]int, len(Kinds))
	for i, k := range Kinds {
		order[k] = i
	}

	result := make([]EntityDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		oi, iok := order[result[i].Info.Kind]
		oj, jok := order[result[j].Info.Kind]
		if iok && jok {
			return oi < oj
		}
		if iok != jok {
			return iok
		}
		return result[i].Info.Kind < result[j].Info.Kind
	})
	return result
}
