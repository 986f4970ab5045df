package handler

import (
	"theiacloud/internal/naming"
	"theiacloud/pkg/logging"
)

// MissingIndices returns the instance indices in 1..desired that none of
// the given resource names carries, in ascending order. Names with a
// malformed index are logged and ignored.
func MissingIndices(desired int, names []string, correlationID string) []int {
	present := make(map[int]struct{}, len(names))
	for _, name := range names {
		index, err := naming.InstanceIndex(name)
		if err != nil {
			logging.Error("Handler", err, "[%s] Skipping resource with malformed instance index", correlationID)
			continue
		}
		present[index] = struct{}{}
	}

	missing := make([]int, 0, desired)
	for i := 1; i <= desired; i++ {
		if _, ok := present[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}
