package epub

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManifestIDFor(t *testing.T) {
	cases := []struct{ name, want string }{
		{"nav.xhtml", "nav"},
		{"toc.ncx", "ncx"},
		{"cover.xhtml", "cover"},
		{"copyright.xhtml", "copyright"},
		{"translators.xhtml", "translators"},
		{"cover.jpeg", "cover-img"},
		{"cover.jpg", "cover-img"},
		{"some-story.xhtml", "some-story"},
		{"illustration-3.png", "illustration-3-img"},
		{"weird name!.xhtml", "weird-name"},
	}
	for _, c := range cases {
		if got := ManifestIDFor(c.name); got != c.want {
			t.Errorf("ManifestIDFor(%q): got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestMediaTypeForKnownExtensions(t *testing.T) {
	cases := []struct{ name, want string }{
		{"a.xhtml", "application/xhtml+xml"},
		{"a.XHTML", "application/xhtml+xml"},
		{"cover.jpeg", "image/jpeg"},
		{"img.png", "image/png"},
		{"toc.ncx", "application/x-dtbncx+xml"},
		{"style.css", "text/css"},
	}
	for _, c := range cases {
		if got := MediaTypeFor(c.name); got != c.want {
			t.Errorf("MediaTypeFor(%q): got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestMediaTypeSniffsUnknownExtension(t *testing.T) {
	dir := t.TempDir()

	// minimal png signature
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	path := filepath.Join(dir, "picture.bin")
	if err := os.WriteFile(path, png, 0644); err != nil {
		t.Fatal(err)
	}
	if got := MediaTypeFor(path); got != "image/png" {
		t.Errorf("sniffed media type: got %q, want image/png", got)
	}

	junk := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(junk, []byte("just text"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := MediaTypeFor(junk); got != "" {
		t.Errorf("plain text should have no manifest media type, got %q", got)
	}
}

func TestPropertiesFor(t *testing.T) {
	if got := propertiesFor("nav.xhtml"); got != "nav" {
		t.Errorf("nav properties: got %q", got)
	}
	if got := propertiesFor("cover.jpeg"); got != "cover-image" {
		t.Errorf("cover properties: got %q", got)
	}
	if got := propertiesFor("a.xhtml"); got != "" {
		t.Errorf("story properties: got %q", got)
	}
}
