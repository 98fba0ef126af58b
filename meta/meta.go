// Package meta holds the per-class scan records and the session store that
// keeps them across the host checker's analysis passes. The store is owned
// by the plugin for the duration of one analysis run; it replaces the host's
// opaque metadata slot so lifecycle boundaries stay explicit.
package meta

import (
	"github.com/declmap/declmap/syntax"
)

// AttributeRecord captures one mapped attribute discovered during a scan.
// Records are immutable after creation.
type AttributeRecord struct {
	Name   string
	Line   int
	Column int
	// Type is the exposed Python type the checker should report for the
	// attribute, not the descriptor wrapper the framework uses at runtime.
	Type  syntax.Type
	Owner *syntax.TypeInfo
}

// ClassMetadata is the scan result attached to one class.
type ClassMetadata struct {
	// IsBase marks declarative roots and mixin-style classes that carry
	// mapped attributes without owning a table themselves.
	IsBase bool
	// IsMapped is immutable once the class has been scanned: a re-scan only
	// replays stored attribute types, never re-derives mapping status.
	IsMapped bool
	HasTable bool
	// Attributes preserves declaration order.
	Attributes []*AttributeRecord
	// MappedAncestors lists every ancestor that was already scanned as
	// mapped or mixin when this class was processed.
	MappedAncestors []*syntax.Instance
	// Fingerprint hashes the class body source the records were derived
	// from, guarding replay against stale incremental-cache entries.
	Fingerprint uint64
}

// Has reports whether an attribute with the given name is already recorded.
func (m *ClassMetadata) Has(name string) bool {
	for _, attr := range m.Attributes {
		if attr.Name == name {
			return true
		}
	}
	return false
}

// AttributeNames returns the attribute names in declaration order.
func (m *ClassMetadata) AttributeNames() []string {
	names := make([]string, 0, len(m.Attributes))
	for _, attr := range m.Attributes {
		names = append(names, attr.Name)
	}
	return names
}

// Store is the session-wide association from class identity to metadata.
// One store lives per analysis run; Reset is the teardown boundary.
type Store struct {
	classes     map[string]*ClassMetadata
	declarative map[string]bool
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		classes:     map[string]*ClassMetadata{},
		declarative: map[string]bool{},
	}
}

// Lookup returns the metadata attached to the class, or nil.
func (s *Store) Lookup(fullname string) *ClassMetadata {
	return s.classes[fullname]
}

// Attach records metadata for a class. Attaching happens exactly once per
// class per run; later scans replay from the stored record.
func (s *Store) Attach(fullname string, md *ClassMetadata) {
	s.classes[fullname] = md
}

// MarkDeclarative flags a class as participating in declarative mapping
// before its body has been scanned.
func (s *Store) MarkDeclarative(fullname string) {
	s.declarative[fullname] = true
}

// IsDeclarative reports whether the class was flagged declarative directly,
// either by a hook or by carrying base metadata. Inherited declarativeness
// is the dispatcher's concern.
func (s *Store) IsDeclarative(fullname string) bool {
	if s.declarative[fullname] {
		return true
	}
	if md := s.classes[fullname]; md != nil && md.IsBase {
		return true
	}
	return false
}

// Reset drops all session state at the end of an analysis run.
func (s *Store) Reset() {
	s.classes = map[string]*ClassMetadata{}
	s.declarative = map[string]bool{}
}
