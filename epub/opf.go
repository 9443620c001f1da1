package epub

import (
	"errors"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// ManifestItem is one entry of the package manifest.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// Package is a parsed package document. The original tree is kept around so
// descriptive metadata can be copied through verbatim on rebuild.
type Package struct {
	doc *etree.Document

	Spine    []string          // itemref idrefs, document order
	Manifest map[string]string // manifest id -> href
}

// LoadPackage parses the package document at path.
func LoadPackage(path string) (*Package, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, structural(path, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "package" {
		return nil, &StructuralError{Path: path, Err: errors.New("not a package document")}
	}

	p := &Package{doc: doc, Manifest: make(map[string]string)}
	if m := root.SelectElement("manifest"); m != nil {
		for _, item := range m.SelectElements("item") {
			id := item.SelectAttrValue("id", "")
			href := item.SelectAttrValue("href", "")
			if id != "" && href != "" {
				p.Manifest[id] = href
			}
		}
	}
	if s := root.SelectElement("spine"); s != nil {
		for _, ref := range s.SelectElements("itemref") {
			if idref := ref.SelectAttrValue("idref", ""); idref != "" {
				p.Spine = append(p.Spine, idref)
			}
		}
	}
	return p, nil
}

func (p *Package) metadata() *etree.Element {
	return p.doc.Root().SelectElement("metadata")
}

// Title returns the collection title from dc:title.
func (p *Package) Title() string {
	if md := p.metadata(); md != nil {
		if el := md.SelectElement("dc:title"); el != nil {
			if t := collapseWS(textContent(el)); t != "" {
				return t
			}
		}
	}
	return "Table of Contents"
}

// Language returns the collection language from dc:language.
func (p *Package) Language() string {
	if md := p.metadata(); md != nil {
		if el := md.SelectElement("dc:language"); el != nil {
			if l := collapseWS(textContent(el)); l != "" {
				return l
			}
		}
	}
	return "en"
}

// UID returns the package unique identifier used by the NCX head. It prefers
// the dc:identifier referenced by the unique-identifier attribute, then any
// dc:identifier with text. When the metadata carries none, a urn:uuid value
// is generated and the second result is true.
func (p *Package) UID() (string, bool) {
	md := p.metadata()
	if md == nil {
		return "urn:uuid:" + uuid.NewString(), true
	}

	uidID := p.doc.Root().SelectAttrValue("unique-identifier", "")
	first := ""
	for _, el := range md.SelectElements("dc:identifier") {
		v := collapseWS(textContent(el))
		if v == "" {
			continue
		}
		if el.SelectAttrValue("id", "") == uidID && uidID != "" {
			return v, false
		}
		if first == "" {
			first = v
		}
	}
	if first != "" {
		return first, false
	}
	return "urn:uuid:" + uuid.NewString(), true
}

// BuildPackage assembles a fresh package document: root attributes and
// metadata are copied from prior verbatim except dcterms:modified which is
// refreshed to now, the manifest comes from items and the spine from idrefs.
// Spine idrefs without a backing manifest entry are dropped.
func BuildPackage(prior *Package, items []ManifestItem, spine []string, now time.Time) *etree.Document {
	doc := etree.NewDocument()

	pkg := doc.CreateElement("package")
	oldRoot := prior.doc.Root()
	for _, a := range oldRoot.Attr {
		pkg.CreateAttr(attrKey(a), a.Value)
	}
	if pkg.SelectAttr("xmlns") == nil {
		pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	}

	var metadata *etree.Element
	if md := prior.metadata(); md != nil {
		metadata = md.Copy()
		pkg.AddChild(metadata)
	} else {
		metadata = pkg.CreateElement("metadata")
		metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	}

	var modified *etree.Element
	for _, meta := range metadata.SelectElements("meta") {
		if meta.SelectAttrValue("property", "") == "dcterms:modified" {
			modified = meta
			break
		}
	}
	if modified == nil {
		modified = metadata.CreateElement("meta")
		modified.CreateAttr("property", "dcterms:modified")
	}
	modified.SetText(now.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z"))

	manifest := pkg.CreateElement("manifest")
	have := make(map[string]bool, len(items))
	for _, it := range items {
		have[it.ID] = true
		item := manifest.CreateElement("item")
		item.CreateAttr("id", it.ID)
		item.CreateAttr("href", it.Href)
		item.CreateAttr("media-type", it.MediaType)
		if it.Properties != "" {
			item.CreateAttr("properties", it.Properties)
		}
	}

	spineEl := pkg.CreateElement("spine")
	if old := oldRoot.SelectElement("spine"); old != nil {
		for _, a := range old.Attr {
			spineEl.CreateAttr(attrKey(a), a.Value)
		}
	}
	for _, idref := range spine {
		if !have[idref] {
			continue
		}
		ref := spineEl.CreateElement("itemref")
		ref.CreateAttr("idref", idref)
	}

	doc.Indent(2)
	return doc
}

func attrKey(a etree.Attr) string {
	if a.Space != "" {
		return a.Space + ":" + a.Key
	}
	return a.Key
}
