package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, PerPage: 20, Offset: 0}},
		{"?page=3&per_page=10", Params{Page: 3, PerPage: 10, Offset: 20}},
		{"?page=-1&per_page=abc", Params{Page: 1, PerPage: 20, Offset: 0}},
		{"?per_page=500", Params{Page: 1, PerPage: MaxPerPage, Offset: 0}},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got := FromRequest(httptest.NewRequest("GET", "/api/admin/bundles"+tc.query, nil))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestApply(t *testing.T) {
	q := New(2, 100).Apply(nil)
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "100", q.Get("per_page"))
}

func TestTotalPages(t *testing.T) {
	p := New(1, 20)
	assert.Equal(t, 0, p.TotalPages(0))
	assert.Equal(t, 1, p.TotalPages(20))
	assert.Equal(t, 2, p.TotalPages(21))
}
