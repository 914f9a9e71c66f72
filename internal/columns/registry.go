// Package columns tracks stable column identity. A column ID is an
// opaque string minted when a column is born; it survives renames, type
// changes, and reorderings, and dies when the column is dropped.
package columns

import (
	"fmt"
	"regexp"
	"strings"

	"sheetflow/internal/errs"
)

var nonIdentChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Registry is a per-sheet bijection between column IDs and the current
// column headers. Headers are unique within a sheet; so are IDs.
type Registry struct {
	idToHeader map[string]string
	headerToID map[string]string
	order      []string // IDs in mint order, for deterministic iteration
}

// NewRegistry mints an ID for every header. Headers must already be
// unique (run DeduplicateHeaders first on raw imports).
func NewRegistry(headers []string) (*Registry, error) {
	r := &Registry{
		idToHeader: make(map[string]string, len(headers)),
		headerToID: make(map[string]string, len(headers)),
	}
	for _, h := range headers {
		if _, err := r.Add(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// mintID derives a deterministic ID from the header's string form.
func (r *Registry) mintID(header string) string {
	base := nonIdentChars.ReplaceAllString(header, "_")
	if base == "" {
		base = "column"
	}
	id := base
	for n := 1; ; n++ {
		if _, taken := r.idToHeader[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// Add mints an ID for a newborn column.
func (r *Registry) Add(header string) (string, error) {
	if _, exists := r.headerToID[header]; exists {
		return "", errs.Invariant("duplicate_header",
			"header %q already registered in sheet", header)
	}
	id := r.mintID(header)
	r.idToHeader[id] = header
	r.headerToID[header] = id
	r.order = append(r.order, id)
	return id, nil
}

// HeaderFor resolves an ID to its current header.
func (r *Registry) HeaderFor(id string) (string, error) {
	h, ok := r.idToHeader[id]
	if !ok {
		return "", errs.UserConfig("column_id_not_found",
			"no column with id %q in this sheet", id)
	}
	return h, nil
}

// IDFor resolves a current header to its ID.
func (r *Registry) IDFor(header string) (string, error) {
	id, ok := r.headerToID[header]
	if !ok {
		return "", errs.UserConfig("column_not_found",
			"no column named %q in this sheet", header)
	}
	return id, nil
}

// Has reports whether the header exists in the sheet.
func (r *Registry) Has(header string) bool {
	_, ok := r.headerToID[header]
	return ok
}

// HasID reports whether the ID exists in the sheet.
func (r *Registry) HasID(id string) bool {
	_, ok := r.idToHeader[id]
	return ok
}

// Rename points an existing ID at a new header.
func (r *Registry) Rename(id, newHeader string) error {
	old, ok := r.idToHeader[id]
	if !ok {
		return errs.UserConfig("column_id_not_found",
			"no column with id %q in this sheet", id)
	}
	if old == newHeader {
		return nil
	}
	if other, taken := r.headerToID[newHeader]; taken && other != id {
		return errs.UserConfig("duplicate_header",
			"a column named %q already exists", newHeader)
	}
	delete(r.headerToID, old)
	r.idToHeader[id] = newHeader
	r.headerToID[newHeader] = id
	return nil
}

// Drop removes the IDs for the given headers. Other sheets are
// unaffected; registries never share IDs.
func (r *Registry) Drop(headers []string) {
	for _, h := range headers {
		id, ok := r.headerToID[h]
		if !ok {
			continue
		}
		delete(r.headerToID, h)
		delete(r.idToHeader, id)
		for i, o := range r.order {
			if o == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}

// IDs returns all IDs in mint order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports the number of registered columns.
func (r *Registry) Len() int { return len(r.idToHeader) }

// Clone deep-copies the registry. States share unchanged sheet metadata,
// so any mutation path must clone first.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		idToHeader: make(map[string]string, len(r.idToHeader)),
		headerToID: make(map[string]string, len(r.headerToID)),
		order:      make([]string, len(r.order)),
	}
	for k, v := range r.idToHeader {
		c.idToHeader[k] = v
	}
	for k, v := range r.headerToID {
		c.headerToID[k] = v
	}
	copy(c.order, r.order)
	return c
}

// Validate checks the ID<->header bijection against the dataframe's
// header list. A mismatch is a bug, not a user error.
func (r *Registry) Validate(headers []string) error {
	if len(headers) != len(r.headerToID) {
		return errs.Invariant("registry_desync",
			"registry has %d columns, dataframe has %d", len(r.headerToID), len(headers))
	}
	for _, h := range headers {
		id, ok := r.headerToID[h]
		if !ok {
			return errs.Invariant("registry_desync", "header %q has no column id", h)
		}
		if r.idToHeader[id] != h {
			return errs.Invariant("registry_desync",
				"id %q maps to %q, expected %q", id, r.idToHeader[id], h)
		}
	}
	return nil
}

// DeduplicateHeaders makes a raw header list unique: repeats get an
// " (n)" suffix, empty or placeholder headers become "nan". Applying it
// to an already-unique list is a no-op.
func DeduplicateHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]bool, len(headers))
	for i, h := range headers {
		if h == "" || strings.EqualFold(h, "nan") {
			h = "nan"
		}
		candidate := h
		for n := 1; seen[candidate]; n++ {
			candidate = fmt.Sprintf("%s (%d)", h, n)
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}
