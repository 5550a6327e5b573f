// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"math"
	"strconv"
	"strings"
)

// preferredKeys are tried in order when a value-object holds several members.
var preferredKeys = []string{"value_raw", "val", "nilai"}

// groupingReplacer strips thousand separators, including the non-breaking
// spaces some exports use. Dots must go before commas are converted.
var groupingReplacer = strings.NewReplacer(
	".", "",
	" ", "",
	"\u00a0", "",
	"\u202f", "",
)

// ParseNumber cleans an Indonesian-formatted numeric string ("1.234,5") and
// parses it. The second result is false when the string is not a number.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = groupingReplacer.Replace(s)
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// extractValue applies the value-object fallback policy: preferred keys in
// order, then the sole member of a single-member object, then a bare scalar.
// Anything else is unparseable and yields (0, false).
func extractValue(obj any) (float64, bool) {
	switch v := obj.(type) {
	case map[string]any:
		for _, key := range preferredKeys {
			if inner, ok := v[key]; ok && inner != nil {
				return scalar(inner)
			}
		}
		if len(v) == 1 {
			for _, inner := range v {
				if inner != nil {
					return scalar(inner)
				}
			}
		}
		return 0, false
	default:
		return scalar(obj)
	}
}

func scalar(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		return ParseNumber(x)
	default:
		return 0, false
	}
}
