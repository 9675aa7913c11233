// Package convert maps loosely typed indexer records into domain entities and back.
//
// Decoders never fail: malformed numbers become 0, unknown enums the first variant and
// undecodable short strings the empty string, so one corrupt record cannot block a batch.
package convert

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is a raw indexed record as returned by the indexer.
type Record = map[string]any

// Uint decodes decimal strings, 0x-hex strings, JSON numbers and Go integers.
func Uint(v any) uint64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return parseUint(x)
	case json.Number:
		return parseUint(string(x))
	case float64:
		if math.IsNaN(x) || x < 0 || x >= math.MaxUint64 {
			return 0
		}
		return uint64(x)
	case float32:
		return Uint(float64(x))
	case int:
		return nonNeg(int64(x))
	case int32:
		return nonNeg(int64(x))
	case int64:
		return nonNeg(x)
	case uint:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Uint32 is Uint saturated to 32 bits.
func Uint32(v any) uint32 {
	n := Uint(v)
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

// Int decodes a signed value; hex strings are read as two's-complement 64-bit.
func Int(v any) int64 {
	switch x := v.(type) {
	case string:
		return parseInt(x)
	case json.Number:
		return parseInt(string(x))
	case float64:
		if math.IsNaN(x) || x >= math.MaxInt64 || x <= math.MinInt64 {
			return 0
		}
		return int64(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	default:
		n := Uint(v)
		if n > math.MaxInt64 {
			return 0
		}
		return int64(n)
	}
}

// Int32 is Int clamped to 32 bits.
func Int32(v any) int32 {
	n := Int(v)
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int32(n)
}

// Bool accepts booleans, numbers and "true"/"false"/numeric strings.
func Bool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		s := strings.TrimSpace(strings.ToLower(x))
		if s == "true" {
			return true
		}
		if s == "false" || s == "" {
			return false
		}
		return parseUint(s) != 0
	default:
		return Uint(v) != 0
	}
}

// Enum resolves an enum value to a variant index. Accepted shapes: bare variant name,
// numeric index (string or number) and a single-key object whose key names the variant.
// Anything unresolvable maps to 0.
func Enum(v any, variants []string) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return enumFromString(x, variants)
	case map[string]any:
		if len(x) != 1 {
			return 0
		}
		for k, inner := range x {
			if i, ok := variantIndex(k, variants); ok {
				return i
			}
			if s, ok := inner.(string); ok {
				return enumFromString(s, variants)
			}
		}
		return 0
	default:
		n := Uint(v)
		if n < uint64(len(variants)) {
			return int(n)
		}
		return 0
	}
}

// ShortString decodes a hex-encoded short string, skipping NUL bytes.
// Values without a 0x prefix are returned unchanged.
func ShortString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" || s == "0x0" {
		return ""
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return s
	}
	h := s[2:]
	if len(h)%2 == 1 {
		h = "0" + h
	}
	var b strings.Builder
	for i := 0; i+2 <= len(h); i += 2 {
		c, err := strconv.ParseUint(h[i:i+2], 16, 8)
		if err != nil {
			return ""
		}
		if c == 0 {
			continue
		}
		b.WriteByte(byte(c))
	}
	return b.String()
}

// EncodeShortString is the inverse of ShortString for ASCII input.
func EncodeShortString(s string) string {
	if s == "" {
		return "0x0"
	}
	return "0x" + hex.EncodeToString([]byte(s))
}

func enumFromString(s string, variants []string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i, ok := variantIndex(s, variants); ok {
		return i
	}
	n := parseUint(s)
	if n < uint64(len(variants)) {
		return int(n)
	}
	return 0
}

func variantIndex(name string, variants []string) (int, bool) {
	for i, v := range variants {
		if strings.EqualFold(v, name) {
			return i, true
		}
	}
	return 0, false
}

func parseUint(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0
		}
		return n
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return int64(parseUint(s))
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func nonNeg(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
