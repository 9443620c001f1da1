package fix

import (
	"strings"
	"testing"
)

func TestConvertPunctuation(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"double quotes pair", `"Hello," she said. "Bye."`, "“Hello,” she said. “Bye.”"},
		{"apostrophe in contraction", "don't you can't", "don’t you can’t"},
		{"possessive apostrophe", "the cat's whiskers", "the cat’s whiskers"},
		{"ellipsis", "well... maybe", "well… maybe"},
		{"double hyphen becomes em dash", "wait -- no", "wait — no"},
		{"long hyphen run", "wait---no", "wait—no"},
		{"elision keeps apostrophe", "'Tis the season", "’Tis the season"},
		{"year elision", "back in '99 it rained", "back in ’99 it rained"},
		{"unchanged text", "nothing to do here", "nothing to do here"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewQuoteState().Convert(tc.in)
			if got != tc.want {
				t.Errorf("Convert(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestConvertStateSpansSegments(t *testing.T) {
	st := NewQuoteState()
	first := st.Convert(`"It began here`)
	second := st.Convert(`and ended there."`)
	if first != "“It began here" {
		t.Errorf("first segment = %q", first)
	}
	if second != "and ended there.”" {
		t.Errorf("second segment = %q", second)
	}
}

func TestTransformTextNodesLeavesMarkupAlone(t *testing.T) {
	in := []byte(`<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>A "Quoted" Title</title></head>
<body>
  <p class="x">"Hi," he said.</p>
  <pre>"leave" -- this... alone</pre>
</body>
</html>`)
	got := string(transformTextNodes(in, NewQuoteState().Convert))

	for _, want := range []string{
		`<?xml version="1.0" encoding="utf-8"?>`,
		`<p class="x">“Hi,” he said.</p>`,
		`<pre>"leave" -- this... alone</pre>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
