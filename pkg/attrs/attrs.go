// Package attrs reads values back out of slog-style key/value lists.
package attrs

import (
	"fmt"
	"log/slog"
)

// ExtractString returns the value logged under key, formatting non-string
// values with fmt. Both alternating key/value pairs and slog.Attr entries are
// understood. Missing keys yield "".
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs); i++ {
		switch k := attrs[i].(type) {
		case slog.Attr:
			if k.Key == key {
				return k.Value.String()
			}
		case string:
			if i+1 >= len(attrs) {
				return ""
			}
			if k == key {
				return stringify(attrs[i+1])
			}
			i++
		}
	}
	return ""
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
