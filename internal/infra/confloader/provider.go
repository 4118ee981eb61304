package confloader

import (
	"errors"
	"strings"
)

// overrides is a koanf provider holding a nested map built from dotted keys.
type overrides map[string]any

func (o *overrides) set(key string, value any) {
	if *o == nil {
		*o = make(overrides)
	}
	m := map[string]any(*o)
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func (o overrides) ReadBytes() ([]byte, error) {
	return nil, errors.New("confloader: overrides have no byte form")
}

func (o overrides) Read() (map[string]any, error) {
	return o, nil
}
