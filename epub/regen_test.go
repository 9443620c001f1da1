package epub

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
)

const testOPF = `<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id" xml:lang="en">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="id">urn:uuid:00000000-0000-0000-0000-000000000001</dc:identifier>
    <dc:title>Test Anthology</dc:title>
    <dc:language>en</dc:language>
    <dc:creator>Somebody Important</dc:creator>
    <meta property="dcterms:modified">2024-01-01T00:00:00Z</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="b" href="b.xhtml" media-type="application/xhtml+xml"/>
    <item id="a" href="a.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="b"/>
    <itemref idref="a"/>
  </spine>
</package>`

func story(title string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + title + `</title></head>
<body>
  <h1>` + title + `</h1>
  <p>Translator: Somebody</p>
  <hr/>
  <p>Story text.</p>
</body>
</html>`
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("unable to write %s: %v", name, err)
	}
	return path
}

func readFile(t *testing.T, dir, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("unable to read %s: %v", name, err)
	}
	return data
}

// trackDir lays out a minimal track: two stories spined in reverse file
// name order, plus placeholder index artifacts.
func trackDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, PackageFile, testOPF)
	writeFile(t, dir, NavFile, "<html xmlns=\"http://www.w3.org/1999/xhtml\"><body><nav><ol/></nav></body></html>")
	writeFile(t, dir, NCXFile, "<ncx xmlns=\"http://www.daisy.org/z3986/2005/ncx/\"/>")
	writeFile(t, dir, "a.xhtml", story("Alpha"))
	writeFile(t, dir, "b.xhtml", story("Beta"))
	return dir
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
}

func regen(dir string) *Regenerator {
	return &Regenerator{Dir: dir, Now: fixedClock}
}

func spineOf(t *testing.T, data []byte) []string {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		t.Fatalf("unable to parse package document: %v", err)
	}
	var spine []string
	for _, ref := range doc.FindElements("//spine/itemref") {
		spine = append(spine, ref.SelectAttrValue("idref", ""))
	}
	return spine
}

func navLinks(t *testing.T, data []byte) []Entry {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		t.Fatalf("unable to parse navigation document: %v", err)
	}
	var links []Entry
	for _, a := range doc.FindElements("//nav//a") {
		links = append(links, Entry{Href: a.SelectAttrValue("href", ""), Title: collapseWS(textContent(a))})
	}
	return links
}

func sameEntries(got []Entry, want []Entry) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].Href != want[i].Href || got[i].Title != want[i].Title {
			return false
		}
	}
	return true
}

func TestComputeKeepsSpineOrder(t *testing.T) {
	dir := trackDir(t)

	res, err := regen(dir).Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if got := spineOf(t, res.OPF); strings.Join(got, ",") != "b,a" {
		t.Errorf("spine order: got %v, want [b a]", got)
	}
	want := []Entry{{Href: "b.xhtml", Title: "Beta"}, {Href: "a.xhtml", Title: "Alpha"}}
	if got := navLinks(t, res.Nav); !sameEntries(got, want) {
		t.Errorf("navigation rows: got %v, want %v", got, want)
	}
	if len(res.Added) != 0 || len(res.Removed) != 0 {
		t.Errorf("unexpected changes: added %v removed %v", res.Added, res.Removed)
	}
	if res.Documents != 2 {
		t.Errorf("documents: got %d, want 2", res.Documents)
	}
}

func TestComputeAppendsNewStoriesInNaturalOrder(t *testing.T) {
	dir := trackDir(t)
	writeFile(t, dir, "c10.xhtml", story("Gamma Ten"))
	writeFile(t, dir, "c2.xhtml", story("Gamma Two"))

	res, err := regen(dir).Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if got := spineOf(t, res.OPF); strings.Join(got, ",") != "b,a,c2,c10" {
		t.Errorf("spine order: got %v, want [b a c2 c10]", got)
	}
	if strings.Join(res.Added, ",") != "c2.xhtml,c10.xhtml" {
		t.Errorf("added: got %v", res.Added)
	}
}

func TestComputeDropsRemovedStories(t *testing.T) {
	dir := trackDir(t)
	if err := os.Remove(filepath.Join(dir, "a.xhtml")); err != nil {
		t.Fatal(err)
	}

	res, err := regen(dir).Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if got := spineOf(t, res.OPF); strings.Join(got, ",") != "b" {
		t.Errorf("spine order: got %v, want [b]", got)
	}
	if bytes.Contains(res.OPF, []byte("a.xhtml")) {
		t.Error("manifest still references the removed file")
	}
	if strings.Join(res.Removed, ",") != "a.xhtml" {
		t.Errorf("removed: got %v", res.Removed)
	}
}

func TestRegenerationIsIdempotent(t *testing.T) {
	dir := trackDir(t)
	r := regen(dir)

	first, err := r.Compute()
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	if err := r.Apply(first); err != nil {
		t.Fatalf("apply: %v", err)
	}

	second, err := r.Compute()
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if !bytes.Equal(first.OPF, second.OPF) {
		t.Error("package document changed on the second run")
	}
	if !bytes.Equal(first.Nav, second.Nav) {
		t.Error("navigation document changed on the second run")
	}
	if !bytes.Equal(first.NCX, second.NCX) {
		t.Error("NCX changed on the second run")
	}
}

func TestMetadataPreservedExceptTimestamp(t *testing.T) {
	dir := trackDir(t)

	res, err := regen(dir).Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(res.OPF); err != nil {
		t.Fatalf("unable to parse package document: %v", err)
	}
	md := doc.FindElement("//metadata")
	if md == nil {
		t.Fatal("no metadata element")
	}
	for _, want := range []struct{ tag, text string }{
		{"dc:identifier", "urn:uuid:00000000-0000-0000-0000-000000000001"},
		{"dc:title", "Test Anthology"},
		{"dc:language", "en"},
		{"dc:creator", "Somebody Important"},
	} {
		el := md.SelectElement(want.tag)
		if el == nil {
			t.Errorf("%s missing from regenerated metadata", want.tag)
			continue
		}
		if got := collapseWS(textContent(el)); got != want.text {
			t.Errorf("%s: got %q, want %q", want.tag, got, want.text)
		}
	}

	var modified string
	for _, meta := range md.SelectElements("meta") {
		if meta.SelectAttrValue("property", "") == "dcterms:modified" {
			modified = meta.Text()
		}
	}
	if modified != "2026-08-24T12:00:00Z" {
		t.Errorf("dcterms:modified: got %q, want the refreshed stamp", modified)
	}
}

func TestMalformedStoryAbortsBeforeAnyWrite(t *testing.T) {
	dir := trackDir(t)
	writeFile(t, dir, "b.xhtml", "<html xmlns=\"http://www.w3.org/1999/xhtml\"><body><p>unclosed</body></html>")

	before := map[string][]byte{}
	for _, name := range []string{PackageFile, NavFile, NCXFile} {
		before[name] = readFile(t, dir, name)
	}

	_, err := regen(dir).Compute()
	if err == nil {
		t.Fatal("expected a structural error")
	}
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %T: %v", err, err)
	}
	if !strings.Contains(se.Path, "b.xhtml") {
		t.Errorf("error does not name the offending file: %v", err)
	}

	for name, data := range before {
		if !bytes.Equal(data, readFile(t, dir, name)) {
			t.Errorf("%s changed although the run aborted", name)
		}
	}
}

func TestFilenameFallbackIsWarnedAbout(t *testing.T) {
	dir := trackDir(t)
	writeFile(t, dir, "nameless-story.xhtml",
		`<html xmlns="http://www.w3.org/1999/xhtml"><head><title/></head><body><p>text</p></body></html>`)

	res, err := regen(dir).Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	found := false
	for _, w := range res.Warnings {
		if w.Path == "nameless-story.xhtml" {
			found = true
		}
	}
	if !found {
		t.Errorf("no warning for the title-less story, warnings: %v", res.Warnings)
	}

	want := Entry{Href: "nameless-story.xhtml", Title: "nameless story"}
	got := navLinks(t, res.Nav)
	if !sameEntries(got[len(got)-1:], []Entry{want}) {
		t.Errorf("navigation label: got %v, want %v", got[len(got)-1], want)
	}
}

func TestApplyReplacesArtifactsAtomically(t *testing.T) {
	dir := trackDir(t)
	r := regen(dir)

	res, err := r.Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if err := r.Apply(res); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !bytes.Equal(res.OPF, readFile(t, dir, PackageFile)) {
		t.Error("content.opf on disk does not match computed content")
	}
	if !bytes.Equal(res.Nav, readFile(t, dir, NavFile)) {
		t.Error("nav.xhtml on disk does not match computed content")
	}
	if !bytes.Equal(res.NCX, readFile(t, dir, NCXFile)) {
		t.Error("toc.ncx on disk does not match computed content")
	}

	// no stray temporary files left behind
	des, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, de := range des {
		if strings.HasPrefix(de.Name(), ".") {
			t.Errorf("leftover temporary file %s", de.Name())
		}
	}
}
