package api

import (
	"net/http"
	"strconv"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParsePage reads page and page_size query parameters, falling back to defaults on bad input.
func ParsePage(r *http.Request) (page, pageSize int) {
	page, pageSize = 1, DefaultPageSize

	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= MaxPageSize {
			pageSize = v
		}
	}
	return page, pageSize
}
