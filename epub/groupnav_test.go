package epub

import (
	"sort"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

func TestGroupSortKeyOrdering(t *testing.T) {
	labels := []string{
		"Fanfic (non-canon)",
		"Timeline unspecified",
		"Around Volume 12",
		"Web Novel (post-ending)",
		"Around Volumes 3–4",
		"Around Volume 2",
		"(Missing Occurrence)",
	}
	sort.SliceStable(labels, func(i, j int) bool {
		return groupSortKey(labels[i]).less(groupSortKey(labels[j]))
	})

	want := []string{
		"Around Volume 2",
		"Around Volumes 3–4",
		"Around Volume 12",
		"Web Novel (post-ending)",
		"(Missing Occurrence)",
		"Timeline unspecified",
		"Fanfic (non-canon)",
	}
	if strings.Join(labels, "|") != strings.Join(want, "|") {
		t.Errorf("group order:\n got %v\nwant %v", labels, want)
	}
}

func storyWithOccurrence(title, occurrence string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + title + `</title></head>
<body>
  <h1>` + title + `</h1>
  <p>Translator: Somebody</p>
  <p>Occurrence: ` + occurrence + `</p>
  <hr/>
  <p>Story text.</p>
</body>
</html>`
}

const groupedNavSeed = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" lang="en" xml:lang="en">
  <head><title>Test Anthology</title></head>
  <body>
    <nav epub:type="toc" id="toc" role="doc-toc">
      <h2>Test Anthology</h2>
      <ol>
        <li><a href="copyright.xhtml">Copyright</a></li>
        <li><a href="s1.xhtml">First</a></li>
        <li><a href="s2.xhtml">Second</a></li>
        <li><a href="s3.xhtml">Third</a></li>
      </ol>
    </nav>
  </body>
</html>`

const groupedOPFSeed = `<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="id">urn:uuid:00000000-0000-0000-0000-000000000002</dc:identifier>
    <dc:title>Test Anthology</dc:title>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="copyright" href="copyright.xhtml" media-type="application/xhtml+xml"/>
    <item id="s1" href="s1.xhtml" media-type="application/xhtml+xml"/>
    <item id="s2" href="s2.xhtml" media-type="application/xhtml+xml"/>
    <item id="s3" href="s3.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="copyright"/>
    <itemref idref="s1"/>
    <itemref idref="s2"/>
    <itemref idref="s3"/>
  </spine>
</package>`

func groupedTrackDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, PackageFile, groupedOPFSeed)
	writeFile(t, dir, NavFile, groupedNavSeed)
	writeFile(t, dir, "copyright.xhtml",
		`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>Copyright</title></head><body><h1>Copyright</h1><hr/></body></html>`)
	writeFile(t, dir, "s1.xhtml", storyWithOccurrence("First", "Around Volume 2"))
	writeFile(t, dir, "s2.xhtml", storyWithOccurrence("Second", "Around Volume 1"))
	writeFile(t, dir, "s3.xhtml", storyWithOccurrence("Third", "Around Volume 2"))
	return dir
}

func TestGroupNavRebuild(t *testing.T) {
	dir := groupedTrackDir(t)

	g := &GroupNav{
		Dir:     dir,
		Exclude: func(name string) bool { return name == NavFile || name == "cover.xhtml" },
		Pinned:  func(name string) bool { return name == "copyright.xhtml" },
	}

	items, missing, err := g.Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("unexpected missing occurrences: %v", missing)
	}
	if len(items) != 4 {
		t.Fatalf("items: got %d, want 4", len(items))
	}
	if err := g.Rebuild(items); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(readFile(t, dir, NavFile)); err != nil {
		t.Fatalf("unable to parse rebuilt navigation: %v", err)
	}

	ol := doc.FindElement("//nav/ol")
	if ol == nil {
		t.Fatal("rebuilt navigation has no top-level list")
	}
	lis := ol.SelectElements("li")
	if len(lis) != 3 {
		t.Fatalf("top-level rows: got %d, want pinned entry plus two groups", len(lis))
	}

	// pinned entry stays a plain link at the top
	if a := lis[0].SelectElement("a"); a == nil || a.SelectAttrValue("href", "") != "copyright.xhtml" {
		t.Error("first row is not the pinned copyright link")
	}

	// groups sorted by volume, spine order within a group
	type group struct {
		label string
		hrefs []string
	}
	var groups []group
	for _, li := range lis[1:] {
		span := li.SelectElement("span")
		sub := li.SelectElement("ol")
		if span == nil || sub == nil {
			t.Fatal("group row without span heading or nested list")
		}
		gr := group{label: collapseWS(textContent(span))}
		for _, a := range sub.FindElements(".//a") {
			gr.hrefs = append(gr.hrefs, a.SelectAttrValue("href", ""))
		}
		groups = append(groups, gr)
	}

	if groups[0].label != "Around Volume 1" || strings.Join(groups[0].hrefs, ",") != "s2.xhtml" {
		t.Errorf("first group wrong: %+v", groups[0])
	}
	if groups[1].label != "Around Volume 2" || strings.Join(groups[1].hrefs, ",") != "s1.xhtml,s3.xhtml" {
		t.Errorf("second group wrong: %+v", groups[1])
	}
}

func TestGroupNavReportsMissingOccurrence(t *testing.T) {
	dir := groupedTrackDir(t)
	writeFile(t, dir, "s2.xhtml", story("Second")) // no occurrence line

	g := &GroupNav{
		Dir:    dir,
		Pinned: func(name string) bool { return name == "copyright.xhtml" },
	}
	items, missing, err := g.Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if strings.Join(missing, ",") != "s2.xhtml" {
		t.Errorf("missing: got %v, want [s2.xhtml]", missing)
	}
	if err := g.Rebuild(items); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !strings.Contains(string(readFile(t, dir, NavFile)), missingOccurrence) {
		t.Error("catch-all group heading not present")
	}
}
