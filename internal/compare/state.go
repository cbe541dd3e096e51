package compare

// State is the serializable form of a Session, used by the store to carry a
// comparison across requests. Group keys use their string form because JSON
// object keys must be strings.
type State struct {
	Policy       PromotionPolicy      `json:"policy"`
	Items        map[string]ItemState `json:"items"`
	ActiveGroups map[string]bool      `json:"active_groups"`
	RequestedQty map[string]float64   `json:"requested_qty"`
	QtyOverride  map[string]float64   `json:"qty_override,omitempty"`
	RowIndex     map[string]int       `json:"row_index"`
}

// ItemState holds one item's prices and overrides keyed by group.
type ItemState struct {
	Prices    map[string]float64 `json:"prices"`
	Overrides map[string]float64 `json:"overrides,omitempty"`
}

// Snapshot captures the session's current state. The best-price cache is
// derived and deliberately not part of the snapshot.
func (s *Session) Snapshot() State {
	state := State{
		Policy:       s.policy,
		Items:        make(map[string]ItemState, len(s.prices)),
		ActiveGroups: make(map[string]bool, len(s.active)),
		RequestedQty: make(map[string]float64, len(s.requestedQty)),
		QtyOverride:  make(map[string]float64, len(s.qtyOverride)),
		RowIndex:     make(map[string]int, len(s.rowIndex)),
	}
	for itemID, groups := range s.prices {
		item := ItemState{Prices: make(map[string]float64, len(groups))}
		for g, p := range groups {
			item.Prices[g.String()] = p
		}
		if overrides := s.overrides[itemID]; len(overrides) > 0 {
			item.Overrides = make(map[string]float64, len(overrides))
			for g, p := range overrides {
				item.Overrides[g.String()] = p
			}
		}
		state.Items[itemID] = item
	}
	for g, active := range s.active {
		state.ActiveGroups[g.String()] = active
	}
	for id, qty := range s.requestedQty {
		state.RequestedQty[id] = qty
	}
	for id, qty := range s.qtyOverride {
		state.QtyOverride[id] = qty
	}
	for id, row := range s.rowIndex {
		state.RowIndex[id] = row
	}
	return state
}

// FromState rebuilds a Session from a snapshot. Unparseable group keys fail
// the whole restore; a session payload is written by us, so a bad key means
// corruption, not user input.
func FromState(state State) (*Session, error) {
	s := NewSession(state.Policy)
	for itemID, item := range state.Items {
		s.AddItem(itemID, state.RequestedQty[itemID], state.RowIndex[itemID])
		for key, price := range item.Prices {
			g, err := ParseGroupKey(key)
			if err != nil {
				return nil, err
			}
			s.prices[itemID][g] = price
		}
		for key, price := range item.Overrides {
			g, err := ParseGroupKey(key)
			if err != nil {
				return nil, err
			}
			if s.overrides[itemID] == nil {
				s.overrides[itemID] = make(map[GroupKey]float64)
			}
			s.overrides[itemID][g] = price
		}
	}
	for key, active := range state.ActiveGroups {
		g, err := ParseGroupKey(key)
		if err != nil {
			return nil, err
		}
		s.active[g] = active
	}
	for id, qty := range state.QtyOverride {
		s.qtyOverride[id] = qty
	}
	s.invalidateAll()
	return s, nil
}
