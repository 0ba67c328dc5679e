package cache

import (
	"sort"
	"strings"
)

// RequestKey derives the cache identity of a request. With no non-secret
// parameters the key is the endpoint itself. Otherwise it is the endpoint
// followed by name-value pairs joined with "_", sorted by name. Parameters
// named in secret never contribute.
func RequestKey(endpoint string, params map[string]string, secret []string) string {
	hidden := make(map[string]struct{}, len(secret))
	for _, name := range secret {
		hidden[name] = struct{}{}
	}

	names := make([]string, 0, len(params))
	for name := range params {
		if _, ok := hidden[name]; ok {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return endpoint
	}
	sort.Strings(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + "-" + params[name]
	}
	return endpoint + strings.Join(pairs, "_")
}
