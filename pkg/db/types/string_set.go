package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringSet is an insertion-ordered set of strings persisted as a JSON array.
type StringSet []string

// Has reports whether value is a member of the set.
func (s StringSet) Has(value string) bool {
	for _, member := range s {
		if member == value {
			return true
		}
	}
	return false
}

// Add appends value when absent and reports whether the set changed.
func (s *StringSet) Add(value string) bool {
	if value == "" || s.Has(value) {
		return false
	}
	*s = append(*s, value)
	return true
}

// ContainsAll reports whether every member of other is in s.
func (s StringSet) ContainsAll(other StringSet) bool {
	for _, member := range other {
		if !s.Has(member) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	copy(out, s)
	return out
}

func (s *StringSet) Scan(src any) error {
	if src == nil {
		*s = StringSet{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return s.parse([]byte(v))
	case []byte:
		return s.parse(v)
	default:
		return fmt.Errorf("StringSet: unsupported Scan type %T", src)
	}
}

func (s StringSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSet) parse(raw []byte) error {
	if strings.TrimSpace(string(raw)) == "" {
		*s = StringSet{}
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("StringSet: parse %q: %w", raw, err)
	}
	out := StringSet{}
	for _, v := range values {
		out.Add(v)
	}
	*s = out
	return nil
}
