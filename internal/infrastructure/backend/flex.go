package backend

import (
	"bytes"
	"encoding/json"

	"github.com/spf13/cast"
)

// The backend emits ids and flags as numbers on some endpoints and as
// strings on others. These scalars accept either, plus null.

type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		if s, ok := v.(string); ok && s == "" {
			*f = 0
			return nil
		}
		return err
	}
	*f = flexInt(n)
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return err
	}
	*f = flexString(s)
	return nil
}

func (f flexString) String() string { return string(f) }

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if s := string(v); s != "" {
			return s
		}
	}
	return ""
}
