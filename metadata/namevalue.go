// Package metadata holds free-form annotations attached to a Result.
package metadata

import (
	"errors"
	"sort"
	"strings"
)

// NameValue is a BigQuery-compatible type for "name"/"value" pairs.
type NameValue struct {
	Name  string
	Value string
}

// ErrMalformed is returned by Parse for entries that are not name=value.
var ErrMalformed = errors.New("metadata must be name=value")

// Parse converts "name=value" entries into NameValues sorted by name. A
// later entry replaces an earlier one with the same name.
func Parse(entries []string) ([]NameValue, error) {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		name, value, ok := strings.Cut(e, "=")
		if !ok || name == "" {
			return nil, ErrMalformed
		}
		m[name] = value
	}
	if len(m) == 0 {
		return nil, nil
	}
	nvs := make([]NameValue, 0, len(m))
	for name, value := range m {
		nvs = append(nvs, NameValue{Name: name, Value: value})
	}
	sort.Slice(nvs, func(i, j int) bool { return nvs[i].Name < nvs[j].Name })
	return nvs, nil
}
