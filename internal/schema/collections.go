package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Index is a collection index over one or more fields.
type Index struct {
	Fields []string `mapstructure:"fields"`
	Unique bool     `mapstructure:"unique"`
}

// Collection describes one collection of the document store.
type Collection struct {
	Name    string
	Raw     bool
	Schema  string
	Indexes []Index
}

// UniqueKey returns the fields of the first unique index, or nil.
func (c *Collection) UniqueKey() []string {
	for _, idx := range c.Indexes {
		if idx.Unique {
			return idx.Fields
		}
	}
	return nil
}

// Collections is the ordered set of known collections.
type Collections struct {
	List   []*Collection
	byName map[string]*Collection
}

// Get looks a collection up by name.
func (c *Collections) Get(name string) (*Collection, bool) {
	col, ok := c.byName[name]
	return col, ok
}

// Names returns the collection names in declared order.
func (c *Collections) Names() []string {
	out := make([]string, len(c.List))
	for i, col := range c.List {
		out[i] = col.Name
	}
	return out
}

// NewCollections builds a Collections set, e.g. for tests.
func NewCollections(cols ...*Collection) *Collections {
	c := &Collections{byName: map[string]*Collection{}}
	for _, col := range cols {
		c.List = append(c.List, col)
		c.byName[col.Name] = col
	}
	return c
}

func parseCollections(root *yaml.Node) (*Collections, error) {
	es, err := entries(root)
	if err != nil {
		return nil, err
	}
	cols := make([]*Collection, 0, len(es))
	for _, e := range es {
		var raw struct {
			Raw     bool    `mapstructure:"raw"`
			Schema  string  `mapstructure:"schema"`
			Indexes []Index `mapstructure:"indexes"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		for _, idx := range raw.Indexes {
			if len(idx.Fields) == 0 {
				return nil, fmt.Errorf("%w: collection %s has an index without fields", ErrInvalidSchema, e.key)
			}
		}
		cols = append(cols, &Collection{Name: e.key, Raw: raw.Raw, Schema: raw.Schema, Indexes: raw.Indexes})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no collections declared", ErrInvalidSchema)
	}
	return NewCollections(cols...), nil
}
