// Package pagination computes result pages and the window of page links
// shown around the current page.
package pagination

const (
	// PageSize is the number of results shown per page.
	PageSize = 5
	// MaxVisiblePages is the width of the page link window.
	MaxVisiblePages = 5
)

// TotalPages returns the number of pages needed for n items.
func TotalPages(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Slice returns the items on the 1-based page. Pages outside the valid
// range yield nil.
func Slice[T any](items []T, page, size int) []T {
	if page < 1 || size <= 0 {
		return nil
	}
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := min(start+size, len(items))
	return items[start:end]
}

// VisiblePages returns the page numbers to display: every page when there
// are at most MaxVisiblePages, otherwise a window centred on current and
// clamped to [1, total].
func VisiblePages(current, total int) []int {
	if total <= 0 {
		return []int{}
	}

	start, end := 1, total
	if total > MaxVisiblePages {
		half := MaxVisiblePages / 2
		start, end = current-half, current+half
		if start < 1 {
			start, end = 1, MaxVisiblePages
		}
		if end > total {
			start, end = total-MaxVisiblePages+1, total
		}
	}

	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}
