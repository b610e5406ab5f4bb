package mapping

import (
	"strconv"
	"strings"
)

// Resolve walks a dotted/indexed path ("a.b[0].c") through a parsed JSON
// document (map[string]any / []any shapes). The second return is false when
// any step fails to resolve; callers treat that as an absent field, never an
// error.
func Resolve(doc any, path string) (any, bool) {
	curr := doc
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		key, indexes, ok := splitIndexes(part)
		if !ok {
			return nil, false
		}
		if key != "" {
			obj, ok := curr.(map[string]any)
			if !ok {
				return nil, false
			}
			next, ok := obj[key]
			if !ok {
				return nil, false
			}
			curr = next
		}
		for _, idx := range indexes {
			arr, ok := curr.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			curr = arr[idx]
		}
	}
	return curr, true
}

// splitIndexes breaks "b[0][1]" into key "b" and indexes [0, 1]. A bare
// "[0]" (no key) indexes the current value directly.
func splitIndexes(part string) (string, []int, bool) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, nil, true
	}
	key := part[:open]
	rest := part[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, idx)
		rest = rest[close+1:]
	}
	return key, indexes, true
}

// ResolveString resolves a path and coerces scalars to their string form.
func ResolveString(doc any, path string) (string, bool) {
	val, ok := Resolve(doc, path)
	if !ok {
		return "", false
	}
	switch v := val.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}
