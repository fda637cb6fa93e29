package errors

import (
	"fmt"

	kdb "github.com/felafax/split/pkg/db"
)

// requested record is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}
func (m Missing) Unwrap() error {
	return kdb.ErrMissing
}
