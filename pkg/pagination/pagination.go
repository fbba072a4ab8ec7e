// Package pagination reads limit/offset windows from the query string and
// wraps list results in a common envelope.
package pagination

import (
	"reflect"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxOffset keeps Offset+Limit and page arithmetic inside int range.
	MaxOffset = 1<<31 - 1
)

type Params struct {
	Limit  int
	Offset int
}

func queryInt(c echo.Context, name string) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

// FromContext never fails: malformed or out-of-range values fall back to the
// defaults. An explicit offset wins over the 1-based page parameter.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if limit, ok := queryInt(c, "limit"); ok && limit > 0 {
		p.Limit = min(limit, MaxLimit)
	}

	if c.QueryParam("offset") != "" {
		offset, _ := queryInt(c, "offset")
		p.Offset = min(max(offset, 0), MaxOffset)
	} else if page, ok := queryInt(c, "page"); ok && page > 0 {
		if page-1 > MaxOffset/p.Limit {
			p.Offset = MaxOffset
		} else {
			p.Offset = (page - 1) * p.Limit
		}
	}
	return p
}

func (p Params) HasNext(total int) bool {
	return p.NextOffset() < total
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// NewResponse encodes a nil slice as an empty JSON array.
func NewResponse(data interface{}, total int, p Params) *Response {
	if v := reflect.ValueOf(data); v.Kind() == reflect.Slice && v.IsNil() {
		data = reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return &Response{Data: data, Total: total, Limit: p.Limit, Offset: p.Offset, HasMore: p.HasNext(total)}
}
