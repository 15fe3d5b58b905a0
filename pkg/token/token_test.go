package token

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestGenerate_Empty(t *testing.T) {
	g := New(42)
	if got := g.Generate(0); got != "" {
		t.Errorf("Generate(0) = %q, want empty string", got)
	}
	if got := g.Generate(-3); got != "" {
		t.Errorf("Generate(-3) = %q, want empty string", got)
	}
}

func TestGenerate_SeededRegression(t *testing.T) {
	g := New(42)
	first := g.Generate(16)
	second := g.Generate(16)

	if first != "dl2INvNSQTZ5zQu9" {
		t.Errorf("first token = %q, want %q", first, "dl2INvNSQTZ5zQu9")
	}
	if second != "MxNmGyAVmNkB33io" {
		t.Errorf("second token = %q, want %q", second, "MxNmGyAVmNkB33io")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := New(7)
	b := New(7)
	for i := 0; i < 50; i++ {
		if x, y := a.Generate(12), b.Generate(12); x != y {
			t.Fatalf("draw %d diverged: %q != %q", i, x, y)
		}
		if x, y := a.Intn(1, 100), b.Intn(1, 100); x != y {
			t.Fatalf("int draw %d diverged: %d != %d", i, x, y)
		}
	}
}

func TestIntn_Bounds(t *testing.T) {
	g := New(3)
	seenLo, seenHi := false, false
	for i := 0; i < 5000; i++ {
		v := g.Intn(1, 10)
		if v < 1 || v > 10 {
			t.Fatalf("Intn(1, 10) = %d out of range", v)
		}
		seenLo = seenLo || v == 1
		seenHi = seenHi || v == 10
	}
	if !seenLo || !seenHi {
		t.Errorf("expected both bounds to be reachable, lo=%v hi=%v", seenLo, seenHi)
	}

	if v := g.Intn(5, 5); v != 5 {
		t.Errorf("Intn(5, 5) = %d, want 5", v)
	}
	if v := g.Intn(9, 2); v < 2 || v > 9 {
		t.Errorf("Intn(9, 2) = %d, want value in [2, 9]", v)
	}
}

func TestDeriveSeed(t *testing.T) {
	if DeriveSeed(42, 1) != DeriveSeed(42, 1) {
		t.Error("DeriveSeed should be a pure function")
	}
	seen := make(map[int64]int)
	for i := 0; i < 1000; i++ {
		s := DeriveSeed(42, i)
		if prev, ok := seen[s]; ok {
			t.Fatalf("DeriveSeed(42, %d) collides with index %d", i, prev)
		}
		seen[s] = i
	}
	if DeriveSeed(42, 1) == DeriveSeed(43, 1) {
		t.Error("different base seeds should derive different task seeds")
	}
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		length int
		limit  uint64
		want   uint64
	}{
		{0, 100, 1},
		{1, 1000, 62},
		{2, 1 << 40, 62 * 62},
		{3, 1000, 1000},
		{16, 1 << 62, 1 << 62},
	}
	for _, tt := range tests {
		if got := Capacity(tt.length, tt.limit); got != tt.want {
			t.Errorf("Capacity(%d, %d) = %d, want %d", tt.length, tt.limit, got, tt.want)
		}
	}
}

// TestProperty_GenerateLengthAndAlphabet checks that every generated token has
// exactly the requested length and only alphabet characters.
func TestProperty_GenerateLengthAndAlphabet(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Generate(n) has length n over the 62-char alphabet", prop.ForAll(
		func(seed int64, length int) bool {
			s := New(seed).Generate(length)
			if len(s) != length {
				return false
			}
			for _, c := range s {
				if !strings.ContainsRune(Alphabet, c) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(0, 256),
	))

	properties.Property("same seed yields same sequence", prop.ForAll(
		func(seed int64, length int) bool {
			a, b := New(seed), New(seed)
			return a.Generate(length) == b.Generate(length) && a.Generate(length) == b.Generate(length)
		},
		gen.Int64(),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
