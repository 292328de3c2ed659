package scraper

import "strings"

// Registry maps state keys to their scrapers. The set of states is fixed at
// startup; nothing registers at runtime.
type Registry struct {
	scrapers map[string]StateScraper
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]StateScraper)}
}

// DefaultRegistry returns a registry with all sixteen Bundesländer registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewBadenWuerttemberg())
	r.Register(NewBayern())
	r.Register(NewBerlin())
	r.Register(NewBrandenburg())
	r.Register(NewBremen())
	r.Register(NewHamburg())
	r.Register(NewHessen())
	r.Register(NewMecklenburgVorpommern())
	r.Register(NewNiedersachsen())
	r.Register(NewNordrheinWestfalen())
	r.Register(NewRheinlandPfalz())
	r.Register(NewSaarland())
	r.Register(NewSachsen())
	r.Register(NewSachsenAnhalt())
	r.Register(NewSchleswigHolstein())
	r.Register(NewThueringen())
	return r
}

// Register adds a scraper under its key.
func (r *Registry) Register(s StateScraper) {
	key := s.Key()
	if _, exists := r.scrapers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.scrapers[key] = s
}

// Normalize canonicalizes a caller-supplied state key.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get returns the scraper for a state key. Matching is case-insensitive and
// ignores surrounding whitespace.
func (r *Registry) Get(key string) (StateScraper, error) {
	s, ok := r.scrapers[Normalize(key)]
	if !ok {
		return nil, &UnknownStateError{Key: key, Valid: r.Keys()}
	}
	return s, nil
}

// Keys returns all registered state keys in registration order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all scrapers in registration order.
func (r *Registry) All() []StateScraper {
	out := make([]StateScraper, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.scrapers[key])
	}
	return out
}
