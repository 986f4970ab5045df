package handler

import (
	"sort"
	"strings"

	"theiacloud/internal/naming"
)

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isInternalServiceName(name string) bool {
	return strings.HasSuffix(name, "-"+naming.SuffixInternalService)
}
