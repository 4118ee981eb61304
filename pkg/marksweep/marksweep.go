package marksweep

import "fmt"

// Funcs are the per-kind callbacks of Sync.
//
// Key and Construct are required. Update and Release may be nil.
type Funcs[K comparable, L any, S any] struct {
	// Key returns the identity of a live element.
	Key func(live L) K

	// Construct builds a stored entry for a live element seen for the first time.
	Construct func(live L) (S, error)

	// Update refreshes an existing stored entry from its live element.
	Update func(stored S, live L) error

	// Release frees whatever a stored entry owns before it is dropped.
	Release func(key K, stored S)
}

// Stats counts what one Sync pass did.
type Stats struct {
	Created  int
	Updated  int
	Released int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Released += other.Released
}

// Sync reconciles stored against live.
//
// A construct or update error stops the pass and is returned; entries
// already marked keep their new values and nothing is swept. A live list
// carrying the same key twice updates the entry a second time.
func Sync[K comparable, L any, S any](stored map[K]S, live []L, f Funcs[K, L, S]) (Stats, error) {
	var st Stats
	marked := make(map[K]struct{}, len(live))

	for _, l := range live {
		k := f.Key(l)
		if s, ok := stored[k]; ok {
			if f.Update != nil {
				if err := f.Update(s, l); err != nil {
					return st, fmt.Errorf("update %v: %w", k, err)
				}
			}
			st.Updated++
		} else {
			s, err := f.Construct(l)
			if err != nil {
				return st, fmt.Errorf("construct %v: %w", k, err)
			}
			stored[k] = s
			st.Created++
		}
		marked[k] = struct{}{}
	}

	for k, s := range stored {
		if _, ok := marked[k]; ok {
			continue
		}
		if f.Release != nil {
			f.Release(k, s)
		}
		delete(stored, k)
		st.Released++
	}
	return st, nil
}

// Clear releases and removes every stored entry.
func Clear[K comparable, S any](stored map[K]S, release func(K, S)) int {
	n := len(stored)
	for k, s := range stored {
		if release != nil {
			release(k, s)
		}
		delete(stored, k)
	}
	return n
}
