package epub

import (
	"errors"

	"github.com/beevik/etree"
)

// metadataBlock is the per-story metadata convention: the element children
// of body between the single h1 and the first hr after it, each a p with a
// "Label: value" line.
type metadataBlock struct {
	body     *etree.Element
	children []*etree.Element
	h1       int
	hr       int
}

func findMetadataBlock(doc *etree.Document) (*metadataBlock, error) {
	body := doc.FindElement("//body")
	if body == nil {
		return nil, errors.New("missing body")
	}

	b := &metadataBlock{body: body, children: body.ChildElements(), h1: -1, hr: -1}
	for i, c := range b.children {
		if c.Tag == "h1" {
			b.h1 = i
			break
		}
	}
	if b.h1 < 0 {
		return nil, errors.New("missing h1")
	}
	for i := b.h1 + 1; i < len(b.children); i++ {
		if b.children[i].Tag == "hr" {
			b.hr = i
			break
		}
	}
	if b.hr < 0 {
		return nil, errors.New("missing hr after metadata block")
	}
	return b, nil
}

// paragraphs returns the p elements of the block, in document order.
func (b *metadataBlock) paragraphs() []*etree.Element {
	var ps []*etree.Element
	for _, c := range b.children[b.h1+1 : b.hr] {
		if c.Tag == "p" {
			ps = append(ps, c)
		}
	}
	return ps
}

// texts returns collapsed text of every metadata paragraph.
func (b *metadataBlock) texts() []string {
	var out []string
	for _, p := range b.paragraphs() {
		out = append(out, collapseWS(textContent(p)))
	}
	return out
}

// tokenIndex finds the position of el among the child tokens of parent.
func tokenIndex(parent, el *etree.Element) int {
	for i, t := range parent.Child {
		if c, ok := t.(*etree.Element); ok && c == el {
			return i
		}
	}
	return -1
}
