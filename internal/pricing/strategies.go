// Package pricing resolves unit prices from heterogeneous catalog records and
// validates stock for an order's lines.
package pricing

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const maxScanDepth = 3

// Strategy extracts a unit price from a product document.
type Strategy struct {
	Name    string
	Extract func(doc map[string]interface{}) (decimal.Decimal, bool)
}

// DefaultStrategies is the ordered list tried by the resolver; the first
// strategy yielding a finite non-negative number wins.
var DefaultStrategies = []Strategy{
	{Name: "price", Extract: field("price")},
	{Name: "price.amount", Extract: nested("price", "amount")},
	{Name: "price.value", Extract: nested("price", "value")},
	{Name: "priceAmount", Extract: field("priceAmount")},
	{Name: "sellingPrice", Extract: field("sellingPrice")},
	{Name: "discountedPrice", Extract: field("discountedPrice")},
	{Name: "salePrice", Extract: field("salePrice")},
	{Name: "mrp", Extract: field("mrp")},
	{Name: "listPrice", Extract: field("listPrice")},
	{Name: "scan", Extract: scan},
}

// scanKeys are looked up, in order, at every level of the recursive scan.
var scanKeys = []string{
	"amount", "value", "price", "priceAmount", "sellingPrice",
	"discountedPrice", "salePrice", "mrp", "listPrice",
}

func field(key string) func(map[string]interface{}) (decimal.Decimal, bool) {
	return func(doc map[string]interface{}) (decimal.Decimal, bool) {
		return toDecimal(doc[key])
	}
}

func nested(parent, key string) func(map[string]interface{}) (decimal.Decimal, bool) {
	return func(doc map[string]interface{}) (decimal.Decimal, bool) {
		inner, ok := doc[parent].(map[string]interface{})
		if !ok {
			return decimal.Decimal{}, false
		}
		return toDecimal(inner[key])
	}
}

// scan walks nested objects breadth-first, up to maxScanDepth levels below the
// document, visiting keys in sorted order so the result is deterministic.
func scan(doc map[string]interface{}) (decimal.Decimal, bool) {
	level := []map[string]interface{}{doc}
	for depth := 0; depth <= maxScanDepth && len(level) > 0; depth++ {
		var next []map[string]interface{}
		for _, m := range level {
			for _, k := range scanKeys {
				if d, ok := toDecimal(m[k]); ok {
					return d, true
				}
			}
			for _, k := range sortedKeys(m) {
				next = append(next, children(m[k])...)
			}
		}
		level = next
	}
	return decimal.Decimal{}, false
}

func children(v interface{}) []map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{t}
	case []interface{}:
		var out []map[string]interface{}
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return d, false
		}
		d = decimal.NewFromFloat(t)
	case float32:
		return toDecimal(float64(t))
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return d, false
		}
		d = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return d, false
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return d, false
		}
		d = parsed
	default:
		return d, false
	}
	if d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Redact returns a diagnostic view of a product document: its id and title,
// and the JSON type of every other top-level field. Values are never copied.
func Redact(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch k {
		case "id", "_id", "title", "name":
			if s, ok := v.(string); ok {
				out[k] = s
				continue
			}
		}
		out[k] = typeName(v)
	}
	return out
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, json.Number:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return "unknown"
}
