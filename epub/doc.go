// Package epub maintains the index artifacts of a short-story anthology
// track: the package document, the navigation document and the legacy NCX.
package epub

import (
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
)

// Index artifacts living next to the story documents in a track directory.
const (
	PackageFile  = "content.opf"
	NavFile      = "nav.xhtml"
	NCXFile      = "toc.ncx"
	MimetypeFile = "mimetype"
)

// TitleSource tells which fallback level produced a document's display title.
type TitleSource int

const (
	TitleFromHeading TitleSource = iota
	TitleFromTitleElement
	TitleFromFilename
)

func (s TitleSource) String() string {
	switch s {
	case TitleFromHeading:
		return "heading"
	case TitleFromTitleElement:
		return "title element"
	case TitleFromFilename:
		return "file name"
	}
	return "unknown"
}

// titleStrategy extracts a display label from a parsed story document.
// Strategies are pure: they only look at their arguments and return ""
// when they have nothing to offer.
type titleStrategy struct {
	source  TitleSource
	extract func(doc *etree.Document, name string) string
}

var titleChain = []titleStrategy{
	{TitleFromHeading, titleFromHeading},
	{TitleFromTitleElement, titleFromTitleElement},
	{TitleFromFilename, titleFromFilename},
}

// ExtractTitle walks the fallback chain and returns the first non-empty
// result: first h1 in the body, then the head title element, then the file
// name with separators humanized. The last strategy always produces
// something, so the title is never empty.
func ExtractTitle(doc *etree.Document, name string) (string, TitleSource) {
	for _, s := range titleChain {
		if title := s.extract(doc, name); title != "" {
			return title, s.source
		}
	}
	// not reachable, the file name strategy never returns ""
	return name, TitleFromFilename
}

func titleFromHeading(doc *etree.Document, _ string) string {
	body := doc.FindElement("//body")
	if body == nil {
		return ""
	}
	if h1 := body.FindElement(".//h1"); h1 != nil {
		return collapseWS(textContent(h1))
	}
	return ""
}

func titleFromTitleElement(doc *etree.Document, _ string) string {
	head := doc.FindElement("//head")
	if head == nil {
		return ""
	}
	if el := head.SelectElement("title"); el != nil {
		return collapseWS(textContent(el))
	}
	return ""
}

func titleFromFilename(_ *etree.Document, name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return collapseWS(strings.NewReplacer("-", " ", "_", " ").Replace(stem))
}

// ParseDocument reads one xhtml file, strict markup only. A parse failure
// comes back as StructuralError with the offending line when known.
func ParseDocument(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, structural(path, err)
	}
	return doc, nil
}

// textContent concatenates all character data below el, in document order.
func textContent(el *etree.Element) string {
	var sb strings.Builder
	for _, child := range el.Child {
		switch t := child.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			sb.WriteString(textContent(t))
		}
	}
	return sb.String()
}

func collapseWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
