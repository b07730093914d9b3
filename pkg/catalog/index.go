package catalog

import (
	"sort"
)

// Bucket holds the items created on one calendar day, newest-first.
type Bucket struct {
	// Date is the bucket key in "YYYY/MM/DD" form.
	Date  string
	Items []Item
}

// Index groups media items into date buckets. The index is ephemeral: it is
// rebuilt from a fresh scan and never persisted.
type Index struct {
	buckets map[string][]Item
	// seen tracks identities per bucket so an identity appears at most once
	// within a day.
	seen map[string]map[string]bool
	size int
}

func NewIndex() *Index {
	return &Index{
		buckets: make(map[string][]Item),
		seen:    make(map[string]map[string]bool),
	}
}

// Add inserts an item into its date bucket. Duplicate identities within the
// same bucket are dropped; Add reports whether the item was inserted.
func (ix *Index) Add(item Item) bool {
	date := item.DatePath()
	if ix.seen[date] == nil {
		ix.seen[date] = make(map[string]bool)
	}
	if ix.seen[date][item.ID] {
		return false
	}
	ix.seen[date][item.ID] = true
	ix.buckets[date] = append(ix.buckets[date], item)
	ix.size++
	return true
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	return ix.size
}

// Buckets returns all date buckets sorted newest-first, each bucket's items
// sorted newest-first as well.
func (ix *Index) Buckets() []Bucket {
	dates := make([]string, 0, len(ix.buckets))
	for date := range ix.buckets {
		dates = append(dates, date)
	}
	// The YYYY/MM/DD key sorts lexicographically in date order.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	buckets := make([]Bucket, 0, len(dates))
	for _, date := range dates {
		items := make([]Item, len(ix.buckets[date]))
		copy(items, ix.buckets[date])
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
		buckets = append(buckets, Bucket{Date: date, Items: items})
	}
	return buckets
}

// ItemsForDate returns the items in one bucket, newest-first. The second
// return reports whether the bucket exists.
func (ix *Index) ItemsForDate(date string) ([]Item, bool) {
	stored, ok := ix.buckets[date]
	if !ok {
		return nil, false
	}
	items := make([]Item, len(stored))
	copy(items, stored)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, true
}

// Items returns every indexed item, newest bucket first.
func (ix *Index) Items() []Item {
	all := make([]Item, 0, ix.size)
	for _, bucket := range ix.Buckets() {
		all = append(all, bucket.Items...)
	}
	return all
}
