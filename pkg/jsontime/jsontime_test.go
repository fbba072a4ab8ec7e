package jsontime

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{`"2025-03-01T10:00"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), false},
		{`"2025-03-01T10:00:30"`, time.Date(2025, 3, 1, 10, 0, 30, 0, time.UTC), false},
		{`"2025-03-01T10:00:00Z"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), false},
		{`"2025-03-01"`, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{`null`, time.Time{}, false},
		{`"01/03/2025"`, time.Time{}, true},
		{`20250301`, time.Time{}, true},
	}
	for _, tt := range tests {
		var got Time
		err := json.Unmarshal([]byte(tt.in), &got)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("Unmarshal(%s) = %s, want %s", tt.in, got.Time, tt.want)
		}
	}
}

func TestPtr(t *testing.T) {
	var nilTime *Time
	if nilTime.Ptr() != nil {
		t.Error("expected nil for nil receiver")
	}
	if (&Time{}).Ptr() != nil {
		t.Error("expected nil for zero time")
	}
	v := Time{time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	if p := v.Ptr(); p == nil || !p.Equal(v.Time) {
		t.Errorf("unexpected Ptr() = %v", p)
	}
}
