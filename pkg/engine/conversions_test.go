package engine

import (
	"errors"
	"testing"
)

func intToFloat(v any) (any, error) {
	return float64(v.(int)), nil
}

func TestConversionIndex_RegisterAndFind(t *testing.T) {
	c := NewConversionIndex()
	if err := c.register(ConversionEntry{Source: keyInt, Target: keyFloat, Convert: intToFloat}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	e, ok := c.Find(keyInt, keyFloat)
	if !ok {
		t.Fatal("Expected Int -> Float to be found")
	}
	if e.Label != "Int->Float" {
		t.Errorf("Expected default label Int->Float, got %s", e.Label)
	}

	if _, ok := c.Find(keyFloat, keyInt); ok {
		t.Errorf("Conversions are directional")
	}
}

func TestConversionIndex_DuplicateIsAmbiguous(t *testing.T) {
	reg := setupTestRegistry(t)
	if err := reg.RegisterConversion(keyInt, keyFloat, intToFloat, WithConversionLabel("widen")); err != nil {
		t.Fatalf("RegisterConversion failed: %v", err)
	}

	err := reg.RegisterConversion(keyInt, keyFloat, intToFloat, WithConversionLabel("widen-again"))
	if !errors.Is(err, ErrAmbiguousConversion) {
		t.Fatalf("Expected ambiguous conversion error, got: %v", err)
	}
	if !IsAmbiguousConversion(err) {
		t.Errorf("Expected IsAmbiguousConversion to be true")
	}

	// the first registration survives
	e, ok := reg.FindConversion(keyInt, keyFloat)
	if !ok || e.Label != "widen" {
		t.Errorf("Expected original conversion to remain, got %+v", e)
	}
}

func TestConversionIndex_Validation(t *testing.T) {
	c := NewConversionIndex()

	tests := []struct {
		name  string
		entry ConversionEntry
	}{
		{"zero source", ConversionEntry{Target: keyFloat, Convert: intToFloat}},
		{"zero target", ConversionEntry{Source: keyInt, Convert: intToFloat}},
		{"nil convert", ConversionEntry{Source: keyInt, Target: keyFloat}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.register(tt.entry); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected invalid error, got: %v", err)
			}
		})
	}
}

func TestConversionIndex_EntriesInOrder(t *testing.T) {
	reg := setupTestRegistry(t)
	_ = reg.RegisterConversion(keyInt, keyFloat, intToFloat)
	_ = reg.RegisterConversion(keyInt, keyString, intToFloat, WithRequirements(keyRate))

	entries := reg.Conversions()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Target != keyFloat || entries[1].Target != keyString {
		t.Errorf("Entries not in registration order: %+v", entries)
	}
	if len(entries[1].Requires) != 1 || entries[1].Requires[0] != keyRate {
		t.Errorf("Requirements not recorded: %+v", entries[1].Requires)
	}
}
