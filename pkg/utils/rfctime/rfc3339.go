package rfctime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Format string for date-time in RFC3339, disallowing Z as time-offset.
const RFC3339DateTimeFormat string = "2006-01-02T15:04:05.999-07:00"

// Format string for parsing, allowing Z as time-offset.
const RFC3339DateTimeFormatZ string = time.RFC3339Nano

// date-time in https://www.ietf.org/rfc/rfc3339.txt .
//
// This type is useful to interchange timestamps via network/file.
type RFC3339 time.Time

func (rfctime RFC3339) Time() time.Time {
	return time.Time(rfctime)
}

func (rfctime *RFC3339) Equal(other *RFC3339) bool {
	if (rfctime == nil) != (other == nil) {
		return false
	}
	return rfctime == nil || rfctime.Time().Equal(other.Time())
}

func (t RFC3339) String() string {
	return time.Time(t).Format(RFC3339DateTimeFormat)
}

func ParseRFC3339DateTime(s string) (RFC3339, error) {
	t, err := time.Parse(RFC3339DateTimeFormatZ, s)
	if err != nil {
		return *new(RFC3339), err
	}
	return RFC3339(t), nil
}

// Pointer converts *time.Time to *RFC3339, keeping nil as nil.
func Pointer(t *time.Time) *RFC3339 {
	if t == nil {
		return nil
	}
	p := RFC3339(*t)
	return &p
}

// implement encoding/json.Marshaller
func (t RFC3339) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, t)), nil
}

// implement encoding/json.Unmarshaller
func (t *RFC3339) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	ret, err := ParseRFC3339DateTime(s)
	if err != nil {
		return err
	}

	*t = RFC3339(ret)

	return nil
}
