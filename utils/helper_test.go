package utils

import (
	"strings"
	"testing"
)

func TestCodePrefix(t *testing.T) {
	cases := []struct {
		name string
		max  int
		want string
	}{
		{"Computer Science", 4, "CS"},
		{"Electrical Engineering Department", 4, "EED"},
		{"physics", 4, "P"},
		{"a b c d e f", 4, "ABCD"},
		{"", 4, "X"},
		{"123 456", 4, "X"},
	}
	for _, c := range cases {
		if got := CodePrefix(c.name, c.max); got != c.want {
			t.Errorf("CodePrefix(%q, %d) = %q; want %q", c.name, c.max, got, c.want)
		}
	}
}

func TestExecTemplateConditionalClauses(t *testing.T) {
	sqlT := `SELECT 1 WHERE a = @a
{{- if .withB }} AND b = @b {{- end }}
{{- if .withC }} AND c = @c {{- end }}`

	sql, err := ExecTemplate(sqlT, map[string]interface{}{
		"withB": true,
		"withC": false,
	})
	if err != nil {
		t.Fatalf("ExecTemplate: %v", err)
	}
	if !strings.Contains(sql, "b = @b") {
		t.Fatalf("expected b clause to be rendered: %q", sql)
	}
	if strings.Contains(sql, "c = @c") {
		t.Fatalf("expected c clause to be dropped: %q", sql)
	}

	if _, err := ExecTemplate("{{ bad", nil); err == nil {
		t.Fatalf("expected parse error for malformed template")
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 42
	if got := DereferencePtr(&v); got != 42 {
		t.Fatalf("got %d", got)
	}
	if got := DereferencePtr[int](nil); got != 0 {
		t.Fatalf("expected zero value, got %d", got)
	}
	if got := DereferencePtr[string](nil, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v; want %v", got, want)
		}
	}
}
