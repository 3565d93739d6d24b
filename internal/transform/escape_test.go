package transform

import "testing"

func TestEscapeScalar(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "up", want: "up"},
		{name: "backslash", in: `a\b`, want: `a\\b`},
		{name: "tab", in: "a\tb", want: `a\tb`},
		{name: "newline", in: "a\nb", want: `a\nb`},
		{name: "quote untouched", in: "a'b", want: "a'b"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := escapeScalar(tc.in)
			if got != tc.want {
				t.Fatalf("escapeScalar(%q)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestEscapeArrayElement(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "instance", want: "instance"},
		{name: "quote escaped", in: "o'brien", want: `o\'brien`},
		{name: "backslash", in: `a\b`, want: `a\\b`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := escapeArrayElement(tc.in)
			if got != tc.want {
				t.Fatalf("escapeArrayElement(%q)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatArray(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   []string
		want string
	}{
		{name: "empty", in: nil, want: "[]"},
		{name: "single", in: []string{"a"}, want: "['a']"},
		{name: "multiple", in: []string{"a", "b"}, want: "['a','b']"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := formatArray(tc.in)
			if got != tc.want {
				t.Fatalf("formatArray(%v)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}
