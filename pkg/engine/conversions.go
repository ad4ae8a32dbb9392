package engine

import (
	"fmt"

	"github.com/openfroyo/tdre/pkg/typekey"
)

// ConvertFunc turns a value of a conversion's source type into a value of its
// target type.
type ConvertFunc func(value any) (any, error)

// ConversionEntry is a single-hop bridge from Source to Target. Requires
// lists keys the converted value depends on; they are resolved after
// Convert runs and attached to the witness.
type ConversionEntry struct {
	Source   typekey.Key
	Target   typekey.Key
	Label    string
	Convert  ConvertFunc
	Requires []typekey.Key
}

// ConversionOption customizes a conversion at registration.
type ConversionOption func(*ConversionEntry)

// WithConversionLabel sets the provenance label of a conversion.
func WithConversionLabel(label string) ConversionOption {
	return func(e *ConversionEntry) {
		e.Label = label
	}
}

// WithRequirements declares keys the converted value requires.
func WithRequirements(keys ...typekey.Key) ConversionOption {
	return func(e *ConversionEntry) {
		e.Requires = append(e.Requires, keys...)
	}
}

type conversionPair struct {
	source typekey.Key
	target typekey.Key
}

// ConversionIndex maps (source, target) pairs to at most one entry.
type ConversionIndex struct {
	entries map[conversionPair]ConversionEntry
	order   []conversionPair
}

// NewConversionIndex creates an empty index.
func NewConversionIndex() *ConversionIndex {
	return &ConversionIndex{entries: make(map[conversionPair]ConversionEntry)}
}

func (c *ConversionIndex) register(entry ConversionEntry) error {
	if entry.Source.IsZero() || entry.Target.IsZero() {
		return NewInvalidError("conversion with empty type key", nil)
	}
	if entry.Convert == nil {
		return NewInvalidError(
			fmt.Sprintf("conversion %s -> %s has no convert function", entry.Source, entry.Target),
			nil,
		).WithKey(entry.Target)
	}
	for _, req := range entry.Requires {
		if req.IsZero() {
			return NewInvalidError("conversion requirement with empty type key", nil).WithKey(entry.Target)
		}
	}

	pair := conversionPair{source: entry.Source, target: entry.Target}
	if existing, ok := c.entries[pair]; ok {
		return NewAmbiguousConversionError(entry.Source, entry.Target, existing.Label)
	}

	if entry.Label == "" {
		entry.Label = fmt.Sprintf("%s->%s", entry.Source, entry.Target)
	}
	entry.Requires = append([]typekey.Key(nil), entry.Requires...)

	c.entries[pair] = entry
	c.order = append(c.order, pair)
	return nil
}

// Find returns the entry for (source, target). There is no transitive search.
func (c *ConversionIndex) Find(source, target typekey.Key) (ConversionEntry, bool) {
	e, ok := c.entries[conversionPair{source: source, target: target}]
	return e, ok
}

// Entries returns all entries in registration order.
func (c *ConversionIndex) Entries() []ConversionEntry {
	out := make([]ConversionEntry, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, c.entries[p])
	}
	return out
}

// Len returns the number of entries.
func (c *ConversionIndex) Len() int {
	return len(c.entries)
}
