package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// List-valued columns are stored as JSON arrays and only ever parsed here, at
// the storage boundary. Application code works with typed slices.

// StringList is a []string stored as a JSON array column.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return valueJSON(l)
}

// Int64List is a []int64 stored as a JSON array column.
type Int64List []int64

// Scan implements sql.Scanner.
func (l *Int64List) Scan(src any) error {
	return scanJSON(src, l)
}

// Value implements driver.Valuer.
func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return valueJSON(l)
}

// Contains reports whether id is a member of the list.
func (l Int64List) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T for JSON list", src)
	}
}

func valueJSON(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
