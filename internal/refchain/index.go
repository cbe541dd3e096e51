package refchain

import "sort"

// Index holds the derived "latest active edge per item" view of the event log.
// It is rebuilt per fetch rather than mutated in place, so a stale or cyclic
// log can never corrupt resolution.
type Index struct {
	active   map[string]ReferenceChangeEvent
	incoming map[string][]string
}

// BuildIndex folds the event log into an Index. Events with empty ids or
// self-references are dropped and reported as diagnostics, never as errors.
// For each original id only the event with the latest ChangeDate survives;
// among events sharing a ChangeDate the later log entry wins.
func BuildIndex(events []ReferenceChangeEvent) (*Index, []Diagnostic) {
	idx := &Index{
		active:   make(map[string]ReferenceChangeEvent, len(events)),
		incoming: make(map[string][]string),
	}
	var diags []Diagnostic
	for _, ev := range events {
		if ev.OriginalItemID == "" || ev.NewReferenceID == "" {
			diags = append(diags, Diagnostic{OriginalItemID: ev.OriginalItemID, Reason: ErrEmptyID.Error()})
			continue
		}
		if ev.OriginalItemID == ev.NewReferenceID {
			diags = append(diags, Diagnostic{OriginalItemID: ev.OriginalItemID, Reason: ErrSelfReference.Error()})
			continue
		}
		current, ok := idx.active[ev.OriginalItemID]
		if !ok || !ev.ChangeDate.Before(current.ChangeDate) {
			idx.active[ev.OriginalItemID] = ev
		}
	}
	for original, ev := range idx.active {
		idx.incoming[ev.NewReferenceID] = append(idx.incoming[ev.NewReferenceID], original)
	}
	for _, ids := range idx.incoming {
		sort.Strings(ids)
	}
	return idx, diags
}

// ActiveChangeFor returns the active reference change for an item, if any.
func (idx *Index) ActiveChangeFor(itemID string) (ReferenceChangeEvent, bool) {
	ev, ok := idx.active[itemID]
	return ev, ok
}

// Resolve returns the effective id for an item. Resolution is single-hop:
// callers that want to chase a chain re-resolve the result themselves. An
// item with no active change resolves to itself.
func (idx *Index) Resolve(itemID string) string {
	ev, ok := idx.active[itemID]
	if !ok || ev.NewReferenceID == itemID {
		return itemID
	}
	return ev.NewReferenceID
}

// IncomingReferences lists items whose active change points at the given id,
// sorted ascending. The item itself is excluded even if a self-reference
// leaked into the log.
func (idx *Index) IncomingReferences(itemID string) []string {
	ids := idx.incoming[itemID]
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == itemID {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Len reports how many items currently carry an active reference change.
func (idx *Index) Len() int {
	return len(idx.active)
}
