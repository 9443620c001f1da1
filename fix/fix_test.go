package fix

import (
	"strings"
	"testing"
)

const fixableStory = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>Old Title</title>
</head>
<body>
  <h1>A New Dawn</h1>

  <p>TL: Alice</p>

  <hr/>

  <p>"Hello," said the cat. It's fine...</p>
</body>
</html>`

func TestFixContent(t *testing.T) {
	out, changed := FixContent([]byte(fixableStory), "")
	if !changed {
		t.Fatal("expected changes")
	}

	got := string(out)
	for _, want := range []string{
		"<title>A New Dawn</title>",
		"<p>Translator: Alice</p>",
		"<p>“Hello,” said the cat. It’s fine…</p>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	// prose no longer ends the body, the closing rule does
	tail := got[strings.LastIndex(got, "fine…"):]
	if !strings.Contains(tail, "<hr/>") {
		t.Errorf("missing final hr:\n%s", got)
	}
}

func TestFixContentIsIdempotent(t *testing.T) {
	once, _ := FixContent([]byte(fixableStory), "")
	twice, changed := FixContent(once, "")
	if changed {
		t.Error("second pass reported changes")
	}
	if string(twice) != string(once) {
		t.Error("second pass altered the document")
	}
}

func TestFixContentInsertsCredit(t *testing.T) {
	out, changed := FixContent([]byte(fixableStory), "<p>Localization: The Team</p>")
	if !changed {
		t.Fatal("expected changes")
	}
	if !strings.Contains(string(out), "<p>Localization: The Team</p>") {
		t.Errorf("credit missing:\n%s", out)
	}

	again, _ := FixContent(out, "<p>Localization: The Team</p>")
	if strings.Count(string(again), "Localization:") != 1 {
		t.Errorf("credit duplicated:\n%s", again)
	}
}

func TestNormalizeContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"self closed with space", "<p />", "<p></p>"},
		{"self closed", "<p/>", "<p></p>"},
		{"paragraph run", "<p>a</p><p>b</p>", "<p>a</p>\n\n  <p>b</p>"},
		{"already normalized", "<p>a</p>\n\n  <p>b</p>", "<p>a</p>\n\n  <p>b</p>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(NormalizeContent([]byte(tc.in))); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
