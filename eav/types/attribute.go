package types

import (
	"sort"

	"github.com/andrfilipenk/new-sub004/errors"
)

// Attribute declares one dynamic attribute of an entity type.
// Backend is immutable after creation and fully determines the value
// table and casting rules.
type Attribute struct {
	AttributeID   int64       `db:"attribute_id" json:"attribute_id,omitempty"`
	Code          string      `db:"attribute_code" json:"code"`
	Label         string      `db:"label" json:"label,omitempty"`
	Backend       BackendType `db:"backend_type" json:"backend_type"`
	FrontendInput string      `db:"frontend_input" json:"frontend_input,omitempty"`
	Required      bool        `db:"is_required" json:"required,omitempty"`
	Unique        bool        `db:"is_unique" json:"unique,omitempty"`
	Searchable    bool        `db:"is_searchable" json:"searchable,omitempty"`
	Filterable    bool        `db:"is_filterable" json:"filterable,omitempty"`
	DefaultValue  string      `db:"default_value" json:"default_value,omitempty"`
	Validation    []string    `db:"validation" json:"validation,omitempty"`
	SortOrder     int         `db:"sort_order" json:"sort_order,omitempty"`
}

// Validate checks the declaration. Called at configuration load time.
func (a *Attribute) Validate() error {
	if a.Code == "" {
		return errors.NewConfigurationError("attribute", "attribute code must not be empty")
	}
	if _, err := ParseBackendType(string(a.Backend)); err != nil {
		return errors.NewConfigurationError(a.Code, "invalid backend type %q", a.Backend)
	}
	return nil
}

// AttributeCollection preserves declaration order and offers O(1) lookup
// by attribute code.
type AttributeCollection struct {
	ordered []*Attribute
	byCode  map[string]*Attribute
}

// NewAttributeCollection builds a collection from attributes sorted by
// SortOrder (stable for equal orders). Duplicate codes are a
// configuration error.
func NewAttributeCollection(attrs ...*Attribute) (*AttributeCollection, error) {
	c := &AttributeCollection{byCode: make(map[string]*Attribute, len(attrs))}

	ordered := make([]*Attribute, len(attrs))
	copy(ordered, attrs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SortOrder < ordered[j].SortOrder
	})

	for _, attr := range ordered {
		if err := attr.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byCode[attr.Code]; exists {
			return nil, errors.NewConfigurationError(attr.Code, "duplicate attribute code")
		}
		c.ordered = append(c.ordered, attr)
		c.byCode[attr.Code] = attr
	}
	return c, nil
}

// Get returns the attribute with the given code.
func (c *AttributeCollection) Get(code string) (*Attribute, bool) {
	attr, ok := c.byCode[code]
	return attr, ok
}

// All returns the attributes in declaration order.
func (c *AttributeCollection) All() []*Attribute {
	return c.ordered
}

// Len returns the number of attributes.
func (c *AttributeCollection) Len() int {
	return len(c.ordered)
}

// Searchable returns attributes flagged searchable, in order.
func (c *AttributeCollection) Searchable() []*Attribute {
	return c.filter(func(a *Attribute) bool { return a.Searchable })
}

// Filterable returns attributes flagged filterable, in order.
func (c *AttributeCollection) Filterable() []*Attribute {
	return c.filter(func(a *Attribute) bool { return a.Filterable })
}

// ByBackend groups attributes by backend type, preserving order within
// each group.
func (c *AttributeCollection) ByBackend() map[BackendType][]*Attribute {
	groups := make(map[BackendType][]*Attribute)
	for _, attr := range c.ordered {
		groups[attr.Backend] = append(groups[attr.Backend], attr)
	}
	return groups
}

func (c *AttributeCollection) filter(keep func(*Attribute) bool) []*Attribute {
	var out []*Attribute
	for _, attr := range c.ordered {
		if keep(attr) {
			out = append(out, attr)
		}
	}
	return out
}
