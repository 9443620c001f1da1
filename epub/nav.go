package epub

import (
	"strconv"

	"github.com/beevik/etree"
)

// Entry is one row of the navigation document and the NCX.
type Entry struct {
	ID    string
	Href  string
	Title string
}

// BuildNav assembles nav.xhtml: a flat toc nav listing entries in spine
// order. The existing navigation document has no xml prolog convention of
// its own, it is regenerated from scratch every time.
func BuildNav(bookTitle, lang string, entries []Entry) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	html.CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")
	html.CreateAttr("lang", lang)
	html.CreateAttr("xml:lang", lang)

	head := html.CreateElement("head")
	title := head.CreateElement("title")
	title.SetText(bookTitle)

	body := html.CreateElement("body")
	nav := body.CreateElement("nav")
	nav.CreateAttr("epub:type", "toc")
	nav.CreateAttr("id", "toc")
	nav.CreateAttr("role", "doc-toc")

	h2 := nav.CreateElement("h2")
	h2.SetText(bookTitle)

	ol := nav.CreateElement("ol")
	for _, e := range entries {
		li := ol.CreateElement("li")
		a := li.CreateElement("a")
		a.CreateAttr("href", e.Href)
		a.SetText(e.Title)
	}

	doc.Indent(2)
	return doc
}

// BuildNCX assembles the legacy toc.ncx kept for reading systems that do not
// understand the EPUB 3 navigation document.
func BuildNCX(uid, bookTitle string, entries []Entry) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")
	for _, m := range []struct{ name, content string }{
		{"dtb:uid", uid},
		{"dtb:depth", "1"},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m.name)
		meta.CreateAttr("content", m.content)
	}

	docTitle := ncx.CreateElement("docTitle")
	text := docTitle.CreateElement("text")
	text.SetText(bookTitle)

	navMap := ncx.CreateElement("navMap")
	for i, e := range entries {
		navPoint := navMap.CreateElement("navPoint")
		navPoint.CreateAttr("id", e.ID)
		navPoint.CreateAttr("playOrder", strconv.Itoa(i+1))

		navLabel := navPoint.CreateElement("navLabel")
		labelText := navLabel.CreateElement("text")
		labelText.SetText(e.Title)

		content := navPoint.CreateElement("content")
		content.CreateAttr("src", e.Href)
	}

	doc.Indent(2)
	return doc
}
