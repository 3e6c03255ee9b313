// pkg/models/cookie.go
package models

// CategoryLabel is one category assignment as reported by a CMP: the
// canonical category plus the raw name the CMP used for it.
type CategoryLabel struct {
	Category CookieCategory `json:"category"`
	Name     string         `json:"name"`
}

// CookieIdentity is the deduplication key for cookie records.
type CookieIdentity struct {
	Name   string
	Domain string
	Path   string
}

// CookieRecord is one normalized cookie entry extracted from a CMP.
// Records sharing an identity are merged: category labels accumulate,
// the remaining fields keep their first-written value.
type CookieRecord struct {
	SiteURL string          `json:"site_url"`
	Name    string          `json:"name"`
	Domain  string          `json:"domain"`
	Path    string          `json:"path"`
	Labels  []CategoryLabel `json:"labels"`
	Purpose string          `json:"purpose,omitempty"`
	Type    string          `json:"type,omitempty"`
}

// Identity returns the (name, domain, path) deduplication key.
func (r *CookieRecord) Identity() CookieIdentity {
	return CookieIdentity{Name: r.Name, Domain: r.Domain, Path: r.Path}
}

// HasLabel reports whether the record already carries a label with the
// given raw category name.
func (r *CookieRecord) HasLabel(rawName string) bool {
	for _, l := range r.Labels {
		if l.Name == rawName {
			return true
		}
	}
	return false
}

// FieldConflict describes a non-category field that disagreed during a
// merge. The first-written value is kept; callers log the conflict.
type FieldConflict struct {
	Field   string
	Kept    string
	Dropped string
}

// RecordSet collects cookie records for one crawl session and merges
// duplicates by identity. Iteration order is insertion order. Not safe for
// concurrent use; each session owns its own set.
type RecordSet struct {
	entries map[CookieIdentity]*CookieRecord
	order   []CookieIdentity
}

// NewRecordSet creates an empty record set.
func NewRecordSet() *RecordSet {
	return &RecordSet{entries: make(map[CookieIdentity]*CookieRecord)}
}

// Add merges rec into the set. A record with a new identity is inserted as
// given. For an existing identity, unseen category labels are appended and
// the other fields keep their first-written value; any disagreeing purpose
// or type values are returned as conflicts for the caller to log.
func (s *RecordSet) Add(rec CookieRecord) []FieldConflict {
	if rec.Path == "" {
		rec.Path = "/"
	}
	id := rec.Identity()

	existing, ok := s.entries[id]
	if !ok {
		stored := rec
		stored.Labels = append([]CategoryLabel(nil), rec.Labels...)
		s.entries[id] = &stored
		s.order = append(s.order, id)
		return nil
	}

	for _, l := range rec.Labels {
		if !existing.HasLabel(l.Name) {
			existing.Labels = append(existing.Labels, l)
		}
	}

	var conflicts []FieldConflict
	if rec.Purpose != "" && existing.Purpose != rec.Purpose {
		if existing.Purpose == "" {
			existing.Purpose = rec.Purpose
		} else {
			conflicts = append(conflicts, FieldConflict{Field: "purpose", Kept: existing.Purpose, Dropped: rec.Purpose})
		}
	}
	if rec.Type != "" && existing.Type != rec.Type {
		if existing.Type == "" {
			existing.Type = rec.Type
		} else {
			conflicts = append(conflicts, FieldConflict{Field: "type", Kept: existing.Type, Dropped: rec.Type})
		}
	}
	return conflicts
}

// Len returns the number of unique cookie identities in the set.
func (s *RecordSet) Len() int {
	return len(s.order)
}

// Records returns the merged records in insertion order.
func (s *RecordSet) Records() []*CookieRecord {
	out := make([]*CookieRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}

// Get looks up a record by identity.
func (s *RecordSet) Get(id CookieIdentity) (*CookieRecord, bool) {
	rec, ok := s.entries[id]
	return rec, ok
}
