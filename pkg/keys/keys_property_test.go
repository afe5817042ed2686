package keys

import (
	"slices"
	"testing"

	"pgregory.net/rapid"
)

func genSegment() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9:._@-]{1,24}`)
}

func genIDs(kind Kind) *rapid.Generator[[]string] {
	return rapid.Custom(func(t *rapid.T) []string {
		p, _ := Lookup(kind)
		ids := make([]string, 0, len(p.Fields()))
		for _, f := range p.Fields() {
			if f == "status_type" {
				ids = append(ids, string(rapid.SampledFrom(StatusTypes()).Draw(t, f)))
				continue
			}
			ids = append(ids, genSegment().Draw(t, f))
		}
		return ids
	})
}

// Property 1: key construction is injective per kind.
// Distinct natural-key tuples never render the same (PK, SK).
func TestProperty_KeyConstructionInjective(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kinds := make([]Kind, 0, len(registry))
		for _, p := range registry {
			kinds = append(kinds, p.Kind)
		}
		kind := rapid.SampledFrom(kinds).Draw(t, "kind")

		a := genIDs(kind).Draw(t, "a")
		b := genIDs(kind).Draw(t, "b")

		ka, err := For(kind, a...)
		if err != nil {
			t.Fatalf("For(%s, %v): %v", kind, a, err)
		}
		kb, err := For(kind, b...)
		if err != nil {
			t.Fatalf("For(%s, %v): %v", kind, b, err)
		}

		if slices.Equal(a, b) != (ka == kb) {
			t.Fatalf("injectivity violated: %v -> %+v, %v -> %+v", a, ka, b, kb)
		}
	})
}

// Property 2: segments containing the delimiter are always rejected.
func TestProperty_DelimiterRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		left := genSegment().Draw(t, "left")
		right := genSegment().Draw(t, "right")

		if _, err := For(KindUserEndpoint, "user", left+Delimiter+right); err == nil {
			t.Fatalf("expected rejection for %q", left+Delimiter+right)
		}
	})
}
