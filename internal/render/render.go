package render

import (
	"fmt"
	"strconv"
	"strings"
)

// Render substitutes every "{{name}}" occurrence in body with the
// stringified value for name. Names absent from data pass through
// verbatim. The transform is pure and deterministic.
func Render(body string, data map[string]any) string {
	for key, value := range data {
		token := "{{" + key + "}}"
		body = strings.ReplaceAll(body, token, FormatValue(value))
	}
	return body
}

// FormatValue stringifies a cell value for substitution. Integer-valued
// numbers render without a decimal point, non-integer floats drop
// trailing zeros (3.50 -> "3.5", 4.00 -> "4"). Everything else uses its
// natural string form.
func FormatValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}
