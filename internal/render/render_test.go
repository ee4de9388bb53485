package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("substitutes every occurrence", func(t *testing.T) {
		t.Parallel()
		got := Render("Hi {{name}}, bye {{name}}", map[string]any{"name": "Ann"})
		require.Equal(t, "Hi Ann, bye Ann", got)
	})

	t.Run("unmatched placeholders pass through", func(t *testing.T) {
		t.Parallel()
		body := "Hi {{name}}, total {{amount}}"
		got := Render(body, map[string]any{"other": "x"})
		require.Equal(t, body, got)
	})

	t.Run("identity on empty mapping", func(t *testing.T) {
		t.Parallel()
		body := "Hi {{name}}"
		require.Equal(t, body, Render(body, nil))
	})

	t.Run("idempotent when output contains no keys", func(t *testing.T) {
		t.Parallel()
		data := map[string]any{"name": "Ann"}
		once := Render("Hi {{name}}", data)
		require.Equal(t, once, Render(once, data))
	})

	t.Run("concrete scenario", func(t *testing.T) {
		t.Parallel()
		got := Render("Hi {{name}}, total {{amount}}", map[string]any{
			"name":   "Ann",
			"amount": 4.0,
		})
		require.Equal(t, "Hi Ann, total 4", got)
	})
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"integer-valued float", 4.0, "4"},
		{"non-integer float", 3.5, "3.5"},
		{"trailing zeros stripped", 3.50, "3.5"},
		{"int", 4, "4"},
		{"int64", int64(12), "12"},
		{"string", "hello", "hello"},
		{"empty string", "", ""},
		{"negative float", -2.750, "-2.75"},
		{"bool falls back to natural form", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}
