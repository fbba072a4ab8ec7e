package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10&offset=30", 10, 30},
		{"limit=500", MaxLimit, 0},
		{"limit=-1&offset=-5", DefaultLimit, 0},
		{"limit=abc", DefaultLimit, 0},
		{"limit=10&page=3", 10, 20},
		{"page=2", DefaultLimit, DefaultLimit},
		{"page=0", DefaultLimit, 0},
		{"limit=10&page=3&offset=5", 10, 5},
		{"page=9223372036854775807", DefaultLimit, MaxOffset},
		{"limit=100&page=4611686018427387904", MaxLimit, MaxOffset},
		{"offset=9223372036854775807", DefaultLimit, MaxOffset},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := paramsFor(tt.query)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d",
					p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 2})
	if !resp.HasMore {
		t.Error("expected has_more with 5 total at offset 2 limit 2")
	}

	last := NewResponse([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if last.HasMore {
		t.Error("expected no more results on the last page")
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body map[string]interface{}
	json.Unmarshal(raw, &body)
	for _, key := range []string{"data", "total", "limit", "offset", "has_more"} {
		if _, ok := body[key]; !ok {
			t.Errorf("expected %q in response", key)
		}
	}
}

func TestParams_NextOffset(t *testing.T) {
	if got := (Params{Limit: 20, Offset: 40}).NextOffset(); got != 60 {
		t.Errorf("expected 60, got %d", got)
	}
}

func TestNewResponse_EmptyListEncodesAsArray(t *testing.T) {
	var none []string
	raw, err := json.Marshal(NewResponse(none, 0, Params{Limit: DefaultLimit}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", raw)
	}
}
