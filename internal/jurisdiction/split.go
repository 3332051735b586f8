// Package jurisdiction decomposes free-text jurisdiction labels into
// (country, state) pairs. This is a string heuristic, not geocoding.
package jurisdiction

import "strings"

// DefaultCountries is the known-country set consulted when a label has
// multiple comma-separated segments.
var DefaultCountries = []string{
	"united states", "usa", "us", "united kingdom", "uk", "canada",
	"australia", "france", "germany", "italy", "spain", "netherlands",
	"ireland", "india", "brazil", "japan", "south korea", "china",
	"mexico", "new zealand", "singapore", "european union", "eu",
}

// Splitter resolves jurisdiction labels against an injectable country set.
type Splitter struct {
	countries map[string]struct{}
}

// New builds a Splitter; an empty set falls back to DefaultCountries.
func New(countries []string) *Splitter {
	if len(countries) == 0 {
		countries = DefaultCountries
	}
	set := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return &Splitter{countries: set}
}

// Split decomposes a label into country and optional state. With one
// segment the whole label is the country. With several, the last then the
// first segment is checked against the known-country set; failing both,
// the first segment is taken as the country on a best-effort basis.
func (s *Splitter) Split(label string) (string, *string) {
	segments := splitSegments(label)
	if len(segments) == 0 {
		return "", nil
	}
	if len(segments) == 1 {
		return segments[0], nil
	}

	last := segments[len(segments)-1]
	if s.known(last) {
		state := strings.Join(segments[:len(segments)-1], ", ")
		return last, &state
	}

	first := segments[0]
	rest := strings.Join(segments[1:], ", ")
	return first, &rest
}

func (s *Splitter) known(segment string) bool {
	_, ok := s.countries[strings.ToLower(segment)]
	return ok
}

func splitSegments(label string) []string {
	parts := strings.Split(label, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
