// Package enums holds the string enums shared by the database, the wire
// payloads and the admin API. Each mirrors a Postgres enum type.
package enums

import "fmt"

// set is the closed list of values behind one enum type.
type set[T ~string] struct {
	kind    string
	members map[T]struct{}
}

func newSet[T ~string](kind string, values ...T) set[T] {
	s := set[T]{kind: kind, members: make(map[T]struct{}, len(values))}
	for _, v := range values {
		s.members[v] = struct{}{}
	}
	return s
}

func (s set[T]) has(v T) bool {
	_, ok := s.members[v]
	return ok
}

func (s set[T]) parse(raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", s.kind, raw)
}
