package query

// Filter is the non-paginated part of a query: a condition tree plus the
// not-yet-compiled search and segment inputs.
type Filter struct {
	ConditionTree  ConditionTree
	Search         string
	SearchExtended bool
	Segment        string
}

// WithConditionTree returns a copy with the tree replaced.
func (f Filter) WithConditionTree(tree ConditionTree) Filter {
	f.ConditionTree = tree
	return f
}

// Page is an offset/limit window. Limit zero means no limit.
type Page struct {
	Skip  int
	Limit int
}

// Apply slices the window out of records.
func (p *Page) Apply(records []Record) []Record {
	if p == nil {
		return records
	}
	start := p.Skip
	if start < 0 {
		start = 0
	}
	if start > len(records) {
		start = len(records)
	}
	end := len(records)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return records[start:end]
}

// PaginatedFilter is a Filter plus ordering and a page window, as consumed
// by list.
type PaginatedFilter struct {
	Filter
	Sort Sort
	Page *Page
}

// WithConditionTree returns a copy with the tree replaced.
func (f PaginatedFilter) WithConditionTree(tree ConditionTree) PaginatedFilter {
	f.ConditionTree = tree
	return f
}

// WithSort returns a copy with the sort replaced.
func (f PaginatedFilter) WithSort(sort Sort) PaginatedFilter {
	f.Sort = sort
	return f
}

// WithPage returns a copy with the page replaced.
func (f PaginatedFilter) WithPage(page *Page) PaginatedFilter {
	f.Page = page
	return f
}
