// Package dbtypes holds column types gorm cannot map on its own.
package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray maps a Postgres uuid[] column. It is written as an array
// literal, so the SQLite test schema stores the same text.
type UUIDArray []uuid.UUID

func (a UUIDArray) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
	b.WriteByte('}')
	return b.String(), nil
}

func (a *UUIDArray) Scan(src any) error {
	var literal string
	switch v := src.(type) {
	case nil:
		*a = UUIDArray{}
		return nil
	case string:
		literal = v
	case []byte:
		literal = string(v)
	default:
		return fmt.Errorf("uuid array: cannot scan %T", src)
	}
	ids, err := parseLiteral(literal)
	if err != nil {
		return err
	}
	*a = ids
	return nil
}

// Contains reports whether id is in the array.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, v := range a {
		if v == id {
			return true
		}
	}
	return false
}

func parseLiteral(literal string) (UUIDArray, error) {
	body := strings.TrimSpace(literal)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		if body == "" {
			return UUIDArray{}, nil
		}
		return nil, fmt.Errorf("uuid array: malformed literal %q", literal)
	}
	body = strings.TrimSpace(body[1 : len(body)-1])
	if body == "" {
		return UUIDArray{}, nil
	}
	elems := strings.Split(body, ",")
	out := make(UUIDArray, 0, len(elems))
	for _, elem := range elems {
		elem = strings.Trim(strings.TrimSpace(elem), `"`)
		if strings.EqualFold(elem, "NULL") {
			return nil, fmt.Errorf("uuid array: NULL element")
		}
		id, err := uuid.Parse(elem)
		if err != nil {
			return nil, fmt.Errorf("uuid array: element %q: %w", elem, err)
		}
		out = append(out, id)
	}
	return out, nil
}
