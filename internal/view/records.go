package view

import (
	"errors"
	"slices"
	"sync"
)

var (
	// ErrStaleResponse reports a response for a filter that is no longer
	// current. Callers drop it without showing an error.
	ErrStaleResponse = errors.New("stale response")
	ErrNotFound      = errors.New("item not in view")
)

// Ticket tags an in-flight fetch with the filter it was issued for.
type Ticket[K comparable] struct {
	Key K
	seq uint64
}

// RecordView holds the collection last fetched for the current filter K
// and pages through it after applying a local match.
type RecordView[T any, K comparable] struct {
	mu sync.Mutex

	idOf  func(T) int64
	match func(T) bool

	key     K
	issued  uint64
	applied uint64
	// epoch changes whenever the collection is replaced.
	epoch  uint64
	loaded bool

	// base is the applied collection less committed removals; items is
	// base less the removals still pending.
	base    []T
	pending map[int64]struct{}
	items   []T
	visible []T
	pager   Pager
}

// NewRecordView returns an empty view; idOf extracts the server id.
func NewRecordView[T any, K comparable](pageSize int, idOf func(T) int64) *RecordView[T, K] {
	return &RecordView[T, K]{
		idOf:  idOf,
		pager: NewPager(pageSize),
	}
}

// SetKey switches the fetch filter. A different key drops the collection,
// invalidates every outstanding ticket and returns to page 1.
func (v *RecordView[T, K]) SetKey(k K) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loaded && k == v.key {
		return
	}
	v.key = k
	v.loaded = false
	v.base = nil
	v.pending = nil
	v.items = nil
	v.epoch++
	v.pager.Reset()
	v.refresh()
}

func (v *RecordView[T, K]) Key() K {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key
}

// SetMatch narrows the collection locally (search text, status) and
// returns to page 1. A nil match shows everything.
func (v *RecordView[T, K]) SetMatch(match func(T) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.match = match
	v.pager.Reset()
	v.refresh()
}

// Begin issues a ticket for a fetch under the current key.
func (v *RecordView[T, K]) Begin() Ticket[K] {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issued++
	return Ticket[K]{Key: v.key, seq: v.issued}
}

// Apply replaces the collection with items fetched under t. It returns
// ErrStaleResponse, leaving the view untouched, when the key changed since
// t was issued or a later fetch has already been applied.
func (v *RecordView[T, K]) Apply(t Ticket[K], items []T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.Key != v.key || t.seq <= v.applied {
		return ErrStaleResponse
	}
	v.applied = t.seq
	v.base = slices.Clone(items)
	v.pending = nil
	v.items = slices.Clone(v.base)
	v.loaded = true
	v.epoch++
	v.refresh()
	return nil
}

// Loaded reports whether a collection has been applied for the current key.
func (v *RecordView[T, K]) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Items returns the whole collection, before local matching.
func (v *RecordView[T, K]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.items)
}

// Visible returns every item passing the local match.
func (v *RecordView[T, K]) Visible() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.visible)
}

// Page returns the items of the current page.
func (v *RecordView[T, K]) Page() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	start, end := v.pager.Bounds()
	return slices.Clone(v.visible[start:end])
}

func (v *RecordView[T, K]) Pager() Pager {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pager
}

func (v *RecordView[T, K]) SetPage(n int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pager.SetPage(n)
}

func (v *RecordView[T, K]) SetPageSize(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pager.SetSize(n)
}

func (v *RecordView[T, K]) refresh() {
	if v.match == nil {
		v.visible = v.items
	} else {
		v.visible = make([]T, 0, len(v.items))
		for _, it := range v.items {
			if v.match(it) {
				v.visible = append(v.visible, it)
			}
		}
	}
	v.pager.SetTotal(len(v.visible))
}

// rebuild derives items from base, keeping the server's order.
func (v *RecordView[T, K]) rebuild() {
	v.items = make([]T, 0, len(v.base))
	for _, it := range v.base {
		if _, ok := v.pending[v.idOf(it)]; !ok {
			v.items = append(v.items, it)
		}
	}
	v.refresh()
}

// PendingRemoval is a tentative delete awaiting server confirmation.
type PendingRemoval[T any, K comparable] struct {
	Item T

	view  *RecordView[T, K]
	id    int64
	page  int
	epoch uint64
	once  sync.Once
}

// BeginRemove takes the item with id out of the view, updating the count
// and clamping the page, until the removal is committed or rolled back.
func (v *RecordView[T, K]) BeginRemove(id int64) (*PendingRemoval[T, K], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := slices.IndexFunc(v.items, func(it T) bool { return v.idOf(it) == id })
	if idx < 0 {
		return nil, ErrNotFound
	}
	p := &PendingRemoval[T, K]{
		Item:  v.items[idx],
		view:  v,
		id:    id,
		page:  v.pager.Page(),
		epoch: v.epoch,
	}
	if v.pending == nil {
		v.pending = make(map[int64]struct{})
	}
	v.pending[id] = struct{}{}
	v.rebuild()
	return p, nil
}

// Commit makes the removal final.
func (p *PendingRemoval[T, K]) Commit() {
	p.once.Do(func() {
		v := p.view
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.epoch != p.epoch {
			return
		}
		delete(v.pending, p.id)
		v.base = slices.DeleteFunc(slices.Clone(v.base), func(it T) bool { return v.idOf(it) == p.id })
	})
}

// Rollback puts the item back in its original place among its neighbours,
// unless the collection has been replaced since, in which case the newer
// collection stands. Other removals still pending stay out.
func (p *PendingRemoval[T, K]) Rollback() {
	p.once.Do(func() {
		v := p.view
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.epoch != p.epoch {
			return
		}
		delete(v.pending, p.id)
		v.rebuild()
		v.pager.SetPage(p.page)
	})
}
