package tgui

import "fmt"

// PaginateSlice returns a sub-slice for the requested page and helper flags.
// page is 0-based and clamped to the last page.
func PaginateSlice[T any](items []T, page, size int) (sub []T, page2 int, hasPrev bool, hasNext bool) {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	if last := max(0, (total-1)/size); page > last {
		page = last
	}
	if page < 0 {
		page = 0
	}
	start := min(page*size, total)
	end := min(start+size, total)
	return items[start:end], page, page > 0, end < total
}

// PageLabel returns a compact pagination label. page is 0-based.
func PageLabel(page, size, total int) string {
	if size <= 0 {
		size = 10
	}
	if total <= 0 {
		return "Page 1/1"
	}
	pages := (total + size - 1) / size
	page = max(0, min(page, pages-1))
	from := page*size + 1
	to := min((page+1)*size, total)
	return fmt.Sprintf("Page %d/%d • %d–%d of %d", page+1, pages, from, to, total)
}
