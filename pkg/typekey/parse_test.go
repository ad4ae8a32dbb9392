package typekey

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want Key
	}{
		{"Int", Con("Int")},
		{"  Int  ", Con("Int")},
		{"scala.Int", Con("scala.Int")},
		{"List<Int>", App("List", Con("Int"))},
		{"Eq(Int,Int)", App("Eq", Con("Int"), Con("Int"))},
		{"Eq< Int , String >", App("Eq", Con("Int"), Con("String"))},
		{"?A", Param("A")},
		{"Future<Either<Error, List<?T>>>", App("Future", App("Either", Con("Error"), App("List", Param("T"))))},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"<Int>",
		"List<Int",
		"List<Int)",
		"List<>",
		"List<Int,>",
		"Int Int",
		"?",
		"1Int",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if err == nil {
				t.Fatalf("Expected error for %q", in)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("Expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParse_RoundTripsCanonicalForm(t *testing.T) {
	inputs := []string{"Int", "List<Int>", "Map<String, List<?V>>", "Eq<Int, Int>"}
	for _, in := range inputs {
		k := MustParse(in)
		if k.String() != in {
			t.Errorf("Canonical form of %q is %q", in, k.String())
		}
		if MustParse(k.String()) != k {
			t.Errorf("Re-parsing %q yielded a different key", k.String())
		}
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected MustParse to panic on invalid input")
		}
	}()
	MustParse("List<")
}
