package domain

import "sort"

// EntityHistory is every stored version of one entity in ledger order.
type EntityHistory []VersionedEntity

// NewEntityHistory sorts versions into ledger order.
func NewEntityHistory(versions []VersionedEntity) EntityHistory {
	history := make(EntityHistory, len(versions))
	copy(history, versions)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Position().Before(history[j].Position())
	})
	return history
}

// Current returns the current version, if any.
func (h EntityHistory) Current() (VersionedEntity, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].IsCurrent {
			return h[i], true
		}
	}
	return VersionedEntity{}, false
}

// Latest returns the most recent version, deleted or not.
func (h EntityHistory) Latest() (VersionedEntity, bool) {
	if len(h) == 0 {
		return VersionedEntity{}, false
	}
	return h[len(h)-1], true
}

// CurrentCount counts rows flagged current; a consistent history has 0 or 1.
func (h EntityHistory) CurrentCount() int {
	count := 0
	for _, version := range h {
		if version.IsCurrent {
			count++
		}
	}
	return count
}
