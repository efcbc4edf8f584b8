package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint derives the cache key for a source and its merged request
// parameters. Parameters are sorted by key, so map iteration order never
// changes the result. The parameter digest is hashed because merged params
// may carry an injected API key.
func Fingerprint(source string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, len(keys))
	for i, k := range keys {
		pairs[i] = [2]string{k, params[k]}
	}

	h := sha256.New()
	h.Write([]byte(source))
	data, _ := json.Marshal(pairs)
	h.Write(data)
	return fmt.Sprintf("%s:%x", source, h.Sum(nil))
}
