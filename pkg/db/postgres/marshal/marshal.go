package marshal

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/jackc/pgtype"
)

// Blob carries an opaque JSON document into/out of a jsonb column.
//
// nil Blob maps to SQL NULL.
type Blob json.RawMessage

var _ driver.Valuer = Blob{}
var _ interface{ Scan(interface{}) error } = &Blob{}

func (b Blob) Value() (driver.Value, error) {
	j := pgtype.JSONB{Bytes: b, Status: pgtype.Present}
	if b == nil {
		j = pgtype.JSONB{Status: pgtype.Null}
	}
	return j.Value()
}

func (b *Blob) Scan(src interface{}) error {
	j := pgtype.JSONB{}
	if err := j.Scan(src); err != nil {
		return err
	}
	if j.Status != pgtype.Present {
		*b = nil
		return nil
	}
	*b = append((*b)[0:0], j.Bytes...)
	return nil
}
