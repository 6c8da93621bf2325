package handlers

import "strconv"

// maxPageSize caps the page size a caller may request.
const maxPageSize = 50

// Pagination is the metadata block returned with message listings. Next and
// Prev are present only when a following or preceding page exists.
type Pagination struct {
	Page          int  `json:"page"`
	Limit         int  `json:"limit"`
	NumberOfPages int  `json:"numberOfPages"`
	Next          *int `json:"next,omitempty"`
	Prev          *int `json:"prev,omitempty"`
}

// buildPagination computes the offset and metadata for a page of totalDocs
// documents: skip=(page-1)*limit, numberOfPages=ceil(totalDocs/limit).
func buildPagination(page, limit, totalDocs int) (int, Pagination) {
	skip := (page - 1) * limit
	totalPages := 0
	if limit > 0 {
		totalPages = (totalDocs + limit - 1) / limit
	}

	pagination := Pagination{Page: page, Limit: limit, NumberOfPages: totalPages}
	if page*limit < totalDocs {
		next := page + 1
		pagination.Next = &next
	}
	if skip > 0 {
		prev := page - 1
		pagination.Prev = &prev
	}
	return skip, pagination
}

// positiveIntQuery parses a positive integer query parameter, falling back
// to def on absence or malformed input.
func positiveIntQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
