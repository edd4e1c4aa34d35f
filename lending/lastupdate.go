package lending

// LastUpdate records the logical slot at which a ledger entity was last
// brought current, plus a stale marker set after mutations that invalidate
// cached valuations.
type LastUpdate struct {
	Slot  uint64
	Stale bool
}

// NewLastUpdate returns a fresh marker at the given slot.
func NewLastUpdate(slot uint64) LastUpdate {
	return LastUpdate{Slot: slot}
}

// SlotsElapsed returns the slots elapsed since the last update. Logical
// time must be monotonic; a regression is rejected.
func (l *LastUpdate) SlotsElapsed(slot uint64) (uint64, error) {
	if slot < l.Slot {
		return 0, ErrInvalidTimestamp
	}
	return slot - l.Slot, nil
}

// UpdateSlot advances the marker and clears staleness.
func (l *LastUpdate) UpdateSlot(slot uint64) {
	l.Slot = slot
	l.Stale = false
}

// MarkStale flags the entity as needing a refresh before its cached
// valuation may be trusted again.
func (l *LastUpdate) MarkStale() {
	l.Stale = true
}

// CurrentAt reports whether the entity was refreshed at exactly the given
// slot and has not been invalidated since.
func (l *LastUpdate) CurrentAt(slot uint64) bool {
	return l.Slot == slot && !l.Stale
}
