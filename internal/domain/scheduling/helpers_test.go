package scheduling

import (
	"time"

	"github.com/sgpd/sgpd/pkg/jsontime"
)

func jsontimeOf(t time.Time) *jsontime.Time {
	return &jsontime.Time{Time: t}
}
