// Package lookup turns textual filters into queries.
//
// A lookup key is a dot-separated chain of attribute names, optionally
// followed by an operator suffix:
//
//	person.name           equality
//	person.yqpoint__lte   ordered comparison (lt, lte, gt, gte, ne)
//	org.oname__in         membership; the value must be a list
//
// Every chain is resolved against a model registry into field references and
// checked for connectivity before it is turned into a path, so a key that
// names a missing attribute or walks off a scalar is rejected here rather
// than by the database.
package lookup

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/queryir"
)

// OpIn is the membership suffix.
const OpIn = "in"

// Separator joins attribute names in a lookup key.
const Separator = "."

// ErrInvalidKey indicates a lookup key that cannot be parsed.
var ErrInvalidKey = errors.New("invalid lookup key")

// Key is a parsed lookup key.
type Key struct {
	Attrs []string
	Op    string // "" for equality
}

// ParseKey splits a lookup key into attribute names and an operator.
func ParseKey(key string) (Key, error) {
	chain, op := key, ""
	if i := strings.LastIndex(key, queryir.PathSeparator); i >= 0 {
		chain, op = key[:i], key[i+len(queryir.PathSeparator):]
		if op != OpIn {
			if _, ok := queryir.ValidOps[queryir.Op(op)]; !ok {
				return Key{}, fmt.Errorf("%w: %q: unknown operator %q", ErrInvalidKey, key, op)
			}
		}
	}
	if chain == "" {
		return Key{}, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	attrs := strings.Split(chain, Separator)
	for _, a := range attrs {
		if a == "" {
			return Key{}, fmt.Errorf("%w: %q: empty attribute name", ErrInvalidKey, key)
		}
	}
	return Key{Attrs: attrs, Op: op}, nil
}

// Refs resolves the key's attribute chain on root and checks it.
func (k Key) Refs(reg *model.Registry, root string) ([]fieldref.Ref, error) {
	refs, err := reg.Refs(root, k.Attrs...)
	if err != nil {
		return nil, err
	}
	if err := fieldref.Check(root, refs...); err != nil {
		return nil, err
	}
	return refs, nil
}

// Predicate builds the predicate comparing the key's path to value.
func (k Key) Predicate(reg *model.Registry, root string, value any) (queryir.Predicate, error) {
	refs, err := k.Refs(reg, root)
	if err != nil {
		return nil, err
	}
	chain := fieldref.On(refs...)

	switch k.Op {
	case "":
		return chain.Equals(value)
	case OpIn:
		values, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s__in needs a list, got %T", ErrInvalidKey, strings.Join(k.Attrs, Separator), value)
		}
		return chain.In(values...)
	default:
		return chain.Compare(queryir.Op(k.Op), value)
	}
}

// Where converts a filter map into one predicate. Keys are combined with AND
// in sorted order; an empty map yields nil, which matches every row.
func Where(reg *model.Registry, root string, where map[string]any) (queryir.Predicate, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]queryir.Predicate, 0, len(keys))
	for _, raw := range keys {
		key, err := ParseKey(raw)
		if err != nil {
			return nil, err
		}
		p, err := key.Predicate(reg, root, where[raw])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", raw, err)
		}
		preds = append(preds, p)
	}
	return queryir.AllOf(preds...), nil
}

// Fields resolves dotted field names on root into query paths.
// Operator suffixes are not allowed.
func Fields(reg *model.Registry, root string, names []string) ([]string, error) {
	paths := make([]string, len(names))
	for i, name := range names {
		key, err := ParseKey(name)
		if err != nil {
			return nil, err
		}
		if key.Op != "" {
			return nil, fmt.Errorf("%w: %q: fields take no operator", ErrInvalidKey, name)
		}
		refs, err := key.Refs(reg, root)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if paths[i], err = fieldref.PathOf(refs...); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return paths, nil
}

// Fingerprint identifies a filter map by the hash of its canonical form.
// Equal maps always share a fingerprint regardless of key order.
func Fingerprint(root string, where map[string]any) (string, error) {
	obj := map[string]any{"from": root}
	if len(where) > 0 {
		obj["where"] = where
	}
	canonical, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return ir.PredicateKey(canonical), nil
}
