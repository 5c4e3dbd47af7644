package database

import (
	"fmt"
	"sort"
)

// joinOptions renders options as sorted key=value pairs joined by sep.
func joinOptions(options map[string]string, sep string) string {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := ""
	for i, key := range keys {
		if i > 0 {
			out += sep
		}
		out += fmt.Sprintf("%s=%s", key, options[key])
	}
	return out
}
