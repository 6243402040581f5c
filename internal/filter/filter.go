// Package filter holds the allow-list filters applied around decode. Both are
// pure membership checks; an empty filter passes everything.
package filter

// IDFilter is an optional frame-id allow-list.
type IDFilter map[uint32]struct{}

func NewIDFilter(ids []uint32) IDFilter {
	if len(ids) == 0 {
		return nil
	}
	f := make(IDFilter, len(ids))
	for _, id := range ids {
		f[id] = struct{}{}
	}
	return f
}

func (f IDFilter) Pass(id uint32) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[id]
	return ok
}

// NameFilter is an optional message-name allow-list applied to the publish
// path only; filtered records may still echo to the console.
type NameFilter map[string]struct{}

func NewNameFilter(names []string) NameFilter {
	if len(names) == 0 {
		return nil
	}
	f := make(NameFilter, len(names))
	for _, n := range names {
		f[n] = struct{}{}
	}
	return f
}

func (f NameFilter) Pass(name string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[name]
	return ok
}
