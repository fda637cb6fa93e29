package marshal_test

import (
	"testing"

	"github.com/felafax/split/pkg/db/postgres/marshal"
)

func TestBlob(t *testing.T) {
	t.Run("it scans a json document", func(t *testing.T) {
		var b marshal.Blob
		if err := b.Scan([]byte(`{"answer": 42}`)); err != nil {
			t.Fatal(err)
		}
		if string(b) != `{"answer": 42}` {
			t.Errorf("unmatch: scanned blob: %s", string(b))
		}
	})

	t.Run("it scans NULL as nil", func(t *testing.T) {
		b := marshal.Blob(`{"stale": true}`)
		if err := b.Scan(nil); err != nil {
			t.Fatal(err)
		}
		if b != nil {
			t.Errorf("blob should be nil, but: %s", string(b))
		}
	})

	t.Run("nil blob becomes SQL NULL", func(t *testing.T) {
		var b marshal.Blob
		v, err := b.Value()
		if err != nil {
			t.Fatal(err)
		}
		if v != nil {
			t.Errorf("value should be nil, but: %v", v)
		}
	})

	t.Run("non-nil blob round-trips through Value", func(t *testing.T) {
		b := marshal.Blob(`["a", "b"]`)
		v, err := b.Value()
		if err != nil {
			t.Fatal(err)
		}
		s, ok := v.(string)
		if !ok {
			t.Fatalf("value is not string: %T", v)
		}
		if s != `["a", "b"]` {
			t.Errorf("unmatch: value: %s", s)
		}
	})
}
