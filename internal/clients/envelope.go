package clients

import (
	"encoding/json"
	"strconv"
	"strings"
)

// envelope is a path of object keys leading to the payload inside a response.
type envelope []string

// unwrap returns the first candidate payload accepted by the predicate.
func unwrap(body map[string]interface{}, candidates []envelope, accept func(map[string]interface{}) bool) (map[string]interface{}, bool) {
	for _, path := range candidates {
		cur := body
		ok := true
		for _, key := range path {
			next, isMap := cur[key].(map[string]interface{})
			if !isMap {
				ok = false
				break
			}
			cur = next
		}
		if ok && accept(cur) {
			return cur, true
		}
	}
	return nil, false
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case map[string]interface{}:
			if id := stringField(v, "_id", "id"); id != "" {
				return id
			}
		}
	}
	return ""
}

func intField(m map[string]interface{}, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return int(i), true
			}
			if f, err := v.Float64(); err == nil {
				return int(f), true
			}
		case float64:
			return int(v), true
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}
