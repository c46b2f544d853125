package metrics

import (
	"sort"
	"strings"

	"github.com/torosent/rangefetch/internal/resource"
)

var friendlyFailureNames = map[resource.FailureKind]string{
	resource.FailureTransport: "Transport failure",
	resource.FailureRejected:  "Rejected by origin",
	resource.FailureStore:     "Store failure",
}

// FriendlyFailureName returns a human-friendly label for a failure kind.
func FriendlyFailureName(kind string) string {
	cleaned := strings.TrimSpace(kind)
	if cleaned == "" {
		return "Unknown failure"
	}
	if name, ok := friendlyFailureNames[resource.FailureKind(cleaned)]; ok {
		return name
	}
	return strings.ToUpper(cleaned[:1]) + cleaned[1:]
}

// KindCount is one row of a failure breakdown.
type KindCount struct {
	Kind  string
	Label string
	Count int64
}

// FailureKinds returns the failure breakdown sorted by descending count,
// then by kind for stability.
func (s Stats) FailureKinds() []KindCount {
	if len(s.Failures) == 0 {
		return nil
	}
	rows := make([]KindCount, 0, len(s.Failures))
	for k, v := range s.Failures {
		rows = append(rows, KindCount{Kind: k, Label: FriendlyFailureName(k), Count: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Kind < rows[j].Kind
	})
	return rows
}
