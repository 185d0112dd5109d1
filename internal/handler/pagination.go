package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
)

// PageLinks point at neighbouring pages of the same query. Prev and Next
// are empty on the first and last page.
type PageLinks struct {
	First string `json:"first"`
	Last  string `json:"last"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// PageResponse is the envelope of every recipe listing.
type PageResponse struct {
	Data    []model.Recipe `json:"data"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Pages   int            `json:"pages"`
	Total   int            `json:"total"`
	Links   PageLinks      `json:"links"`
}

// newPageResponse wraps p and builds links from the request URL, keeping
// every query parameter except page.
func newPageResponse(baseURL string, r *http.Request, p repository.RecipePage) PageResponse {
	pages := p.Pages()
	link := func(page int) string {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(p.PerPage))
		return strings.TrimRight(baseURL, "/") + r.URL.Path + "?" + q.Encode()
	}

	links := PageLinks{First: link(1), Last: link(pages)}
	if p.Page > 1 {
		links.Prev = link(min(p.Page-1, pages))
	}
	if p.Page < pages {
		links.Next = link(p.Page + 1)
	}

	data := p.Recipes
	if data == nil {
		data = []model.Recipe{}
	}
	return PageResponse{
		Data:    data,
		Page:    p.Page,
		PerPage: p.PerPage,
		Pages:   pages,
		Total:   p.Total,
		Links:   links,
	}
}
