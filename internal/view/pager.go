// Package view windows fetched record collections into pages and keeps
// them consistent with the filter they were fetched for.
package view

// Pager tracks the current page over a collection of Total items.
// The page is always within [1, Pages()].
type Pager struct {
	page  int
	size  int
	total int
}

func NewPager(size int) Pager {
	if size < 1 {
		size = 1
	}
	return Pager{page: 1, size: size}
}

func (p Pager) Page() int  { return p.page }
func (p Pager) Size() int  { return p.size }
func (p Pager) Total() int { return p.total }

// Pages returns ceil(total/size), and 1 for an empty collection.
func (p Pager) Pages() int {
	if p.total <= 0 {
		return 1
	}
	return (p.total + p.size - 1) / p.size
}

// SetPage moves to page n, clamped into range, and returns the page set.
func (p *Pager) SetPage(n int) int {
	p.page = max(1, min(n, p.Pages()))
	return p.page
}

func (p *Pager) SetSize(n int) {
	p.size = max(1, n)
	p.SetPage(p.page)
}

// SetTotal updates the item count and pulls the page back when it no
// longer exists.
func (p *Pager) SetTotal(n int) {
	p.total = max(0, n)
	p.SetPage(p.page)
}

func (p *Pager) Reset() { p.page = 1 }

func (p Pager) HasPrev() bool { return p.page > 1 }
func (p Pager) HasNext() bool { return p.page < p.Pages() }

// Bounds returns the half-open index range of the current page.
func (p Pager) Bounds() (start, end int) {
	start = (p.page - 1) * p.size
	end = min(start+p.size, p.total)
	if start > end {
		start = end
	}
	return start, end
}
