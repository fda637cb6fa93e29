package assignment

import (
	"testing"

	kdb "github.com/felafax/split/pkg/db"
)

func TestPickWeighted(t *testing.T) {
	variants := func(weights ...float64) []kdb.Variant {
		vs := make([]kdb.Variant, len(weights))
		for i, w := range weights {
			vs[i] = kdb.Variant{Id: string(rune('a' + i)), Weight: w}
		}
		return vs
	}

	t.Run("it splits [0, 1) proportionally to weights", func(t *testing.T) {
		vs := variants(1, 3)

		for r, want := range map[float64]string{
			0.0:     "a",
			0.2499:  "a",
			0.25:    "b",
			0.5:     "b",
			0.99999: "b",
		} {
			got := pickWeighted(vs, r)
			if got.Id != want {
				t.Errorf("r = %f: picked %s, want %s", r, got.Id, want)
			}
		}
	})

	t.Run("equal weights split evenly", func(t *testing.T) {
		vs := variants(0.5, 0.5, 0.5)

		for r, want := range map[float64]string{
			0.0:  "a",
			0.34: "b",
			0.67: "c",
		} {
			got := pickWeighted(vs, r)
			if got.Id != want {
				t.Errorf("r = %f: picked %s, want %s", r, got.Id, want)
			}
		}
	})

	t.Run("zero total weight degenerates to the first variant", func(t *testing.T) {
		vs := variants(0, 0)

		for _, r := range []float64{0, 0.5, 0.99} {
			got := pickWeighted(vs, r)
			if got.Id != "a" {
				t.Errorf("r = %f: picked %s, want a", r, got.Id)
			}
		}
	})

	t.Run("zero-weight variants are never picked", func(t *testing.T) {
		vs := variants(0, 2, 0)

		for _, r := range []float64{0, 0.5, 0.999} {
			got := pickWeighted(vs, r)
			if got.Id != "b" {
				t.Errorf("r = %f: picked %s, want b", r, got.Id)
			}
		}
	})

	t.Run("r at the upper edge still lands on a weighted variant", func(t *testing.T) {
		vs := variants(1, 1, 0)

		got := pickWeighted(vs, 0.9999999999999999)
		if got.Id != "b" {
			t.Errorf("picked %s, want b", got.Id)
		}
	})
}
